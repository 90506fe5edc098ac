package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"cleaning_booking/internal/domain"
)

// SyncService pushes persisted bookings to the hosted backend and stamps them synced.
type SyncService struct {
	repo    domain.BookingRepository
	sink    domain.BookingSink
	workers int64
	now     func() time.Time
	// OnResult receives "synced" or "failed" per booking.
	OnResult func(result string)
}

func NewSyncService(r domain.BookingRepository, sink domain.BookingSink, workers int, now func() time.Time) *SyncService {
	if workers <= 0 {
		workers = 1
	}
	if now == nil {
		now = time.Now
	}
	return &SyncService{repo: r, sink: sink, workers: int64(workers), now: now, OnResult: func(string) {}}
}

// SyncOnce pushes up to batch unsynced bookings. Failed pushes stay unsynced for the next run.
func (s *SyncService) SyncOnce(ctx context.Context, batch int) (synced, failed int, err error) {
	pending, err := s.repo.ListUnsynced(ctx, batch)
	if err != nil {
		return 0, 0, err
	}
	if len(pending) == 0 {
		return 0, 0, nil
	}

	sem := semaphore.NewWeighted(s.workers)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, b := range pending {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(b domain.BookingRecord) {
			defer wg.Done()
			defer sem.Release(1)

			ok := s.push(ctx, b)
			mu.Lock()
			if ok {
				synced++
			} else {
				failed++
			}
			mu.Unlock()
		}(b)
	}
	wg.Wait()
	return synced, failed, ctx.Err()
}

func (s *SyncService) push(ctx context.Context, b domain.BookingRecord) bool {
	if err := s.sink.PushBooking(ctx, b); err != nil {
		log.Warn().Str("booking", b.ID).Err(err).Msg("push failed")
		s.OnResult("failed")
		return false
	}
	if err := s.repo.MarkSynced(ctx, b.ID, s.now().UTC()); err != nil {
		// pushed but not stamped; the backend treats the retry as a conflict
		log.Warn().Str("booking", b.ID).Err(err).Msg("mark synced failed")
		s.OnResult("failed")
		return false
	}
	log.Debug().Str("booking", b.ID).Msg("booking synced")
	s.OnResult("synced")
	return true
}
