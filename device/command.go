package device

import "github.com/openracing/ffbengine/pipeline"

// CommandKind tags the closed set of requests the orchestrator can send
// into the RT loop's command ring (spec.md §4.6 step 2, §6). Modeled as
// a tagged struct rather than an interface, consistent with spec.md §9's
// guidance for the RT hot path.
type CommandKind int

const (
	CommandApplyPipeline CommandKind = iota
	CommandUpdateSafety
	CommandShutdown
)

// ApplyPipelineResult is sent back on Command.Reply for a
// CommandApplyPipeline request: an explicit accept/reject plus reason,
// matching spec.md §6 "reply indicates acceptance" (supplemented per
// original_source's ipc.rs command-response shape, SPEC_FULL.md §7).
type ApplyPipelineResult struct {
	Accepted bool
	Reason   string
}

// Command is the tagged request sent from the orchestrator to the RT
// loop. Reply, if non-nil, is a buffered channel of capacity 1 the RT
// loop sends exactly one ApplyPipelineResult into before returning to
// its tick — the Go analog of the original's oneshot-channel reply.
type Command struct {
	Kind CommandKind

	Pipeline *pipeline.Config // CommandApplyPipeline
	Reply    chan ApplyPipelineResult

	HandsOn     bool    // CommandUpdateSafety
	DeviceTempC float32 // CommandUpdateSafety; not read by the RT loop
}
