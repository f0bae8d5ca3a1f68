package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"finwatch/internal/amqp"
	"finwatch/internal/core"
	"finwatch/internal/services"
)

type stubSyncer struct {
	res   services.IngestResult
	err   error
	calls []string
}

func (s *stubSyncer) Sync(_ context.Context, userID, token string) (services.IngestResult, error) {
	s.calls = append(s.calls, userID+"/"+token)
	return s.res, s.err
}

func TestHandleSyncRequest(t *testing.T) {
	upstream := fmt.Errorf("sync transactions: %w", core.ErrUpstream)

	tests := []struct {
		name    string
		res     services.IngestResult
		err     error
		wantErr bool
	}{
		{name: "success", res: services.IngestResult{Committed: make([]core.LedgerEntry, 2)}},
		{name: "auth failure is acknowledged", err: fmt.Errorf("fetch: %w", core.ErrAuthentication)},
		{name: "missing user is acknowledged", err: core.ErrMissingUser},
		{name: "total upstream failure is retried", err: upstream, wantErr: true},
		{name: "partial upstream failure is acknowledged", res: services.IngestResult{Committed: make([]core.LedgerEntry, 1)}, err: upstream},
		{name: "replayed partial is acknowledged", res: services.IngestResult{Duplicates: 3}, err: upstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := &stubSyncer{res: tt.res, err: tt.err}
			w := NewSyncWorker(syncer)

			err := w.HandleSyncRequest(context.Background(), amqp.NewSyncRequestMessage("alice", "tok"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("HandleSyncRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, core.ErrUpstream) {
				t.Errorf("error %v does not wrap ErrUpstream", err)
			}
			if len(syncer.calls) != 1 || syncer.calls[0] != "alice/tok" {
				t.Errorf("calls = %v", syncer.calls)
			}
		})
	}
}
