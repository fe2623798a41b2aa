package nats

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kirillkom/retrieval-fusion/internal/core/domain"
)

type retrieveRequest struct {
	Question  string           `json:"question"`
	Overrides domain.Overrides `json:"overrides"`
}

type retrieveReply struct {
	Result *domain.RetrievalResult `json:"result,omitempty"`
	Error  string                  `json:"error,omitempty"`
	Kind   string                  `json:"kind,omitempty"`
}

// errorKinds is checked in order; the first match names the reply kind.
var errorKinds = []struct {
	name string
	kind error
}{
	{"invalid_input", domain.ErrInvalidInput},
	{"temporary", domain.ErrTemporary},
	{"index_not_found", domain.ErrIndexNotFound},
	{"configuration", domain.ErrConfiguration},
	{"retrieval", domain.ErrRetrieval},
	{"rerank", domain.ErrRerank},
}

func kindByName(name string) error {
	for _, k := range errorKinds {
		if k.name == name {
			return k.kind
		}
	}
	return nil
}

func encodeRequest(question string, overrides domain.Overrides) ([]byte, error) {
	raw, err := json.Marshal(retrieveRequest{Question: question, Overrides: overrides})
	if err != nil {
		return nil, fmt.Errorf("encode retrieve request: %w", err)
	}
	return raw, nil
}

func decodeRequest(data []byte) (retrieveRequest, error) {
	var req retrieveRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return retrieveRequest{}, domain.WrapError(domain.ErrInvalidInput, "decode retrieve request", err)
	}
	return req, nil
}

func encodeReply(result *domain.RetrievalResult, err error) []byte {
	reply := retrieveReply{Result: result}
	if err != nil {
		reply.Result = nil
		reply.Error = err.Error()
		for _, k := range errorKinds {
			if errors.Is(err, k.kind) {
				reply.Kind = k.name
				break
			}
		}
	}
	raw, marshalErr := json.Marshal(reply)
	if marshalErr != nil {
		raw, _ = json.Marshal(retrieveReply{Error: marshalErr.Error()})
	}
	return raw
}

// decodeReply restores the error kind so callers can branch on it across the wire.
func decodeReply(data []byte) (*domain.RetrievalResult, error) {
	var reply retrieveReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("decode retrieve reply: %w", err)
	}
	if reply.Error != "" {
		if kind := kindByName(reply.Kind); kind != nil {
			return nil, domain.WrapError(kind, "remote retrieve", errors.New(reply.Error))
		}
		return nil, fmt.Errorf("remote retrieve: %s", reply.Error)
	}
	if reply.Result == nil {
		return nil, fmt.Errorf("remote retrieve: empty reply")
	}
	return reply.Result, nil
}
