package kernel

import (
	"context"
	"fmt"
)

// Complete returns an empty, successful completion reply.
func (k *Kernel) Complete(ctx context.Context, req CompleteRequest) (*CompleteReply, error) {
	return &CompleteReply{
		Matches:     []string{},
		CursorStart: 0,
		CursorEnd:   0,
		Metadata:    map[string]any{},
		Status:      "ok",
	}, nil
}

func (k *Kernel) Inspect(ctx context.Context, req InspectRequest) (*InspectReply, error) {
	return nil, fmt.Errorf("inspect_request: %w", ErrNotImplemented)
}

func (k *Kernel) IsComplete(ctx context.Context, req IsCompleteRequest) (*IsCompleteReply, error) {
	return nil, fmt.Errorf("is_complete_request: %w", ErrNotImplemented)
}

func (k *Kernel) CommInfo(ctx context.Context, req CommInfoRequest) (*CommInfoReply, error) {
	return nil, fmt.Errorf("comm_info_request: %w", ErrNotImplemented)
}

// Input would deliver an input_reply to code waiting on stdin.
func (k *Kernel) Input(ctx context.Context, req InputRequest) error {
	return fmt.Errorf("input_reply: %w", ErrNotImplemented)
}
