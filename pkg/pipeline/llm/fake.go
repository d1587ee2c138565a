package llm

import "context"

// FakeClient is a test double that returns canned responses in order,
// or runs a caller-supplied function when set. Zero value returns an
// empty response for every call.
type FakeClient struct {
	Responses []CompletionResponse
	Err       error
	Fn        func(CompletionRequest) (CompletionResponse, error)

	calls int
	Seen  []CompletionRequest
}

func (f *FakeClient) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	f.Seen = append(f.Seen, req)
	if f.Fn != nil {
		return f.Fn(req)
	}
	if f.Err != nil {
		return CompletionResponse{}, f.Err
	}
	if f.calls >= len(f.Responses) {
		return CompletionResponse{}, nil
	}
	resp := f.Responses[f.calls]
	f.calls++
	return resp, nil
}
