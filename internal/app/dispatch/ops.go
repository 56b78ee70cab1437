package dispatch

import (
	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/vibedeck/internal/errdefs"
	"github.com/osa030/vibedeck/internal/infra/anthropic"
)

// Operation names form the closed vocabulary offered to the model.
const (
	OpPlayURL        = "play_url"
	OpSearchAndQueue = "search_and_queue"
	OpQueueNext      = "queue_next"
	OpSkip           = "skip"
	OpPause          = "pause"
	OpResume         = "resume"
	OpSetVolume      = "set_volume"
	OpClearQueue     = "clear_queue"
	OpReplaceQueue   = "replace_queue"
)

const (
	defaultSearchCount = 3
	maxSearchCount     = 5
	// Each replace_queue query contributes this many results.
	replaceCountPerQuery = 2
)

// PlayURLArgs plays a direct locator immediately.
type PlayURLArgs struct {
	URL string `mapstructure:"url"`
}

// SearchAndQueueArgs appends up to Count search results to the queue tail.
type SearchAndQueueArgs struct {
	Query string `mapstructure:"query"`
	Count int    `mapstructure:"count"`
}

// QueueNextArgs inserts one resolved song right after the playing entry.
type QueueNextArgs struct {
	Query string `mapstructure:"query"`
}

// SetVolumeArgs sets the volume, clamped to [0,100].
type SetVolumeArgs struct {
	Level int `mapstructure:"level"`
}

// ReplaceQueueArgs clears the queue and refills it from the given queries.
type ReplaceQueueArgs struct {
	Queries []string `mapstructure:"queries"`
}

// Operation is one validated, typed state mutation. Args is nil for the
// argument-free operations (skip, pause, resume, clear_queue).
type Operation struct {
	Name string
	Args any
}

// decodeOperation validates a raw tool call against the vocabulary and
// decodes its arguments into the matching typed struct. Unknown names and
// malformed arguments yield errdefs.ErrInvalidOperation.
func decodeOperation(call anthropic.ToolCall) (Operation, error) {
	op := Operation{Name: call.Name}

	invalid := func(err error, msg string) (Operation, error) {
		return Operation{}, errors.Mark(errors.Wrap(err, msg), errdefs.ErrInvalidOperation)
	}

	switch call.Name {
	case OpPlayURL:
		var args PlayURLArgs
		if err := mapstructure.Decode(call.Args, &args); err != nil {
			return invalid(err, "play_url arguments")
		}
		if args.URL == "" {
			return invalid(errors.New("url is required"), "play_url arguments")
		}
		op.Args = args

	case OpSearchAndQueue:
		var args SearchAndQueueArgs
		if err := mapstructure.Decode(call.Args, &args); err != nil {
			return invalid(err, "search_and_queue arguments")
		}
		if args.Query == "" {
			return invalid(errors.New("query is required"), "search_and_queue arguments")
		}
		if args.Count <= 0 {
			args.Count = defaultSearchCount
		}
		if args.Count > maxSearchCount {
			args.Count = maxSearchCount
		}
		op.Args = args

	case OpQueueNext:
		var args QueueNextArgs
		if err := mapstructure.Decode(call.Args, &args); err != nil {
			return invalid(err, "queue_next arguments")
		}
		if args.Query == "" {
			return invalid(errors.New("query is required"), "queue_next arguments")
		}
		op.Args = args

	case OpSetVolume:
		var args SetVolumeArgs
		if err := mapstructure.Decode(call.Args, &args); err != nil {
			return invalid(err, "set_volume arguments")
		}
		op.Args = args

	case OpReplaceQueue:
		var args ReplaceQueueArgs
		if err := mapstructure.Decode(call.Args, &args); err != nil {
			return invalid(err, "replace_queue arguments")
		}
		if len(args.Queries) == 0 {
			return invalid(errors.New("queries are required"), "replace_queue arguments")
		}
		op.Args = args

	case OpSkip, OpPause, OpResume, OpClearQueue:
		// No arguments.

	default:
		return invalid(errors.Newf("unknown operation %q", call.Name), "operation name")
	}

	return op, nil
}

// toolDefs returns the vocabulary advertised to the model.
func toolDefs() []anthropic.ToolDef {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	obj := func(props map[string]any, required ...string) map[string]any {
		schema := map[string]any{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	}

	return []anthropic.ToolDef{
		{
			Name:        OpPlayURL,
			Description: "Fetch and play a direct media URL immediately. Use when the user provides a link.",
			InputSchema: obj(map[string]any{"url": str("Media URL to play")}, "url"),
		},
		{
			Name:        OpSearchAndQueue,
			Description: "Search the media source and append results to the queue. Use for song names, artist requests, or mood-based queries.",
			InputSchema: obj(map[string]any{
				"query": str("Search query"),
				"count": map[string]any{"type": "integer", "description": "Number of results to queue (1-5)", "default": defaultSearchCount},
			}, "query"),
		},
		{
			Name:        OpQueueNext,
			Description: "Resolve one song and slot it in right after the currently playing one.",
			InputSchema: obj(map[string]any{"query": str("Search query for exactly one song")}, "query"),
		},
		{
			Name:        OpReplaceQueue,
			Description: "Clear the queue and refill it from new searches. Use when the user wants a whole new vibe.",
			InputSchema: obj(map[string]any{
				"queries": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Search queries for the new queue",
				},
			}, "queries"),
		},
		{
			Name:        OpClearQueue,
			Description: "Remove every pending song from the queue. The currently playing song keeps playing.",
			InputSchema: obj(map[string]any{}),
		},
		{
			Name:        OpSkip,
			Description: "Skip the currently playing song.",
			InputSchema: obj(map[string]any{}),
		},
		{
			Name:        OpPause,
			Description: "Pause playback.",
			InputSchema: obj(map[string]any{}),
		},
		{
			Name:        OpResume,
			Description: "Resume playback.",
			InputSchema: obj(map[string]any{}),
		},
		{
			Name:        OpSetVolume,
			Description: "Set the playback volume.",
			InputSchema: obj(map[string]any{
				"level": map[string]any{"type": "integer", "description": "Volume level 0-100"},
			}, "level"),
		},
	}
}
