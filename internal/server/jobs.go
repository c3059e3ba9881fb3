package server

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/tomfevang/datasmith/internal/populate"
	"github.com/tomfevang/datasmith/internal/session"
)

type jobResult struct {
	packet *populate.TablePacket
	err    error
}

// genJob is one background generation run. The result channel holds at
// most the single outcome; a cancelled job queues nothing, so polling it
// reports a dead worker.
type genJob struct {
	id       string
	progress *populate.Progress
	cancel   context.CancelFunc
	result   chan jobResult
	done     chan struct{}
}

// alive reports whether the worker goroutine is still running.
func (j *genJob) alive() bool {
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

// startJob launches generation on its own session engine and returns
// immediately. The resolved spec is persisted once the packet is built.
func (s *Server) startJob(clone *session.Session, spec *populate.TableSpec) *genJob {
	ctx, cancel := context.WithCancel(context.Background())
	job := &genJob{
		id:       uuid.NewString(),
		progress: populate.NewProgress(spec.NoOfEntries),
		cancel:   cancel,
		result:   make(chan jobResult, 1),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(job.done)
		defer clone.Close()
		defer cancel()

		resolved, packet, err := s.pop.BuildPackets(ctx, clone, spec, job.progress)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				s.log.Info("generation job cancelled", "job_id", job.id, "table", spec.Name)
				return
			}
			s.log.Error("generation job failed", "job_id", job.id, "table", spec.Name, "err", err)
			job.progress.SetStatus("error")
			job.result <- jobResult{err: err}
			return
		}

		if err := s.store.SaveSpec(resolved); err != nil {
			s.log.Error("saving table spec failed", "job_id", job.id, "table", spec.Name, "err", err)
			job.progress.SetStatus("error")
			job.result <- jobResult{err: err}
			return
		}

		s.log.Info("generation job finished", "job_id", job.id,
			"table", spec.Name, "entries", packet.TotalEntries)
		job.progress.SetStatus("done")
		job.result <- jobResult{packet: packet}
	}()

	return job
}
