package provider

import "context"

// Executor runs one operation under retry and budget policy. Satisfied by
// retry.Manager.
type Executor interface {
	Do(ctx context.Context, op func(ctx context.Context) error) error
}

// retryingInvoker is the production Invoker: every call to the wrapped
// invoker goes through the retry manager.
type retryingInvoker struct {
	next Invoker
	exec Executor
}

// NewRetryingInvoker wraps next so each Invoke runs under exec's retry and
// budget policy.
func NewRetryingInvoker(next Invoker, exec Executor) Invoker {
	return &retryingInvoker{next: next, exec: exec}
}

func (r *retryingInvoker) Invoke(ctx context.Context, spec Spec, apiKey string, req Request) (Reply, error) {
	var reply Reply
	err := r.exec.Do(ctx, func(ctx context.Context) error {
		got, err := r.next.Invoke(ctx, spec, apiKey, req)
		if err != nil {
			return err
		}
		reply = got
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	return reply, nil
}
