package app

import (
	"sync"

	"mcq-exam-service/internal/domain"
)

// LeaderboardFeed fans out fresh leaderboards to subscribers of an exam.
type LeaderboardFeed struct {
	mu          sync.Mutex
	subscribers map[int64]map[*subscriber]struct{}
}

type subscriber struct {
	ch        chan domain.Leaderboard
	published bool
}

// Subscription is one registered receiver of an exam's leaderboards.
type Subscription struct {
	C      <-chan domain.Leaderboard
	Cancel func()

	feed *LeaderboardFeed
	sub  *subscriber
}

func NewLeaderboardFeed() *LeaderboardFeed {
	return &LeaderboardFeed{subscribers: make(map[int64]map[*subscriber]struct{})}
}

// Subscribe registers a receiver for examID. Publishes made from now on are delivered.
// The caller must invoke Cancel to avoid leaks.
func (f *LeaderboardFeed) Subscribe(examID int64) *Subscription {
	sub := &subscriber{ch: make(chan domain.Leaderboard, 8)}

	f.mu.Lock()
	subs, ok := f.subscribers[examID]
	if !ok {
		subs = make(map[*subscriber]struct{})
		f.subscribers[examID] = subs
	}
	subs[sub] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		subs := f.subscribers[examID]
		if _, ok := subs[sub]; !ok {
			return
		}
		delete(subs, sub)
		close(sub.ch)
		if len(subs) == 0 {
			delete(f.subscribers, examID)
		}
	}
	return &Subscription{C: sub.ch, Cancel: cancel, feed: f, sub: sub}
}

// Offer delivers an initial snapshot read after Subscribe. It is dropped when a
// publish already reached the subscriber, since that one is at least as fresh.
func (s *Subscription) Offer(lb domain.Leaderboard) {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	if s.sub.published {
		return
	}
	select {
	case s.sub.ch <- lb:
	default:
	}
}

// Publish delivers lb to every subscriber of its exam.
func (f *LeaderboardFeed) Publish(lb domain.Leaderboard) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for sub := range f.subscribers[lb.Exam.ID] {
		sub.published = true
		select {
		case sub.ch <- lb:
		default:
			// Slow reader: drop its oldest pending snapshot so the latest always lands.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- lb
		}
	}
}

// Subscribers reports how many receivers are registered for examID.
func (f *LeaderboardFeed) Subscribers(examID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers[examID])
}
