package events_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/frahmantamala/orgtree/internal/core/events"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestEvents(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Events Suite")
}

var _ = Describe("EventBus", func() {
	var bus *events.EventBus

	BeforeEach(func() {
		bus = events.NewEventBus(slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	It("should deliver asynchronously to every subscriber of the type", func() {
		var calls atomic.Int32
		handler := func(context.Context, events.Event) error {
			calls.Add(1)
			return nil
		}
		bus.Subscribe(events.EventTypeNodeCreated, handler)
		bus.Subscribe(events.EventTypeNodeCreated, handler)
		bus.Subscribe(events.EventTypeNodeArchived, handler)

		Expect(bus.Publish(context.Background(), events.NewNodeEvent(events.EventTypeNodeCreated, "n-1", "", "admin"))).To(Succeed())
		bus.Wait()

		Expect(calls.Load()).To(BeEquivalentTo(2))
	})

	It("should hand handlers a context that outlives the request", func() {
		ctx, cancel := context.WithCancel(context.Background())
		seen := make(chan error, 1)
		bus.Subscribe(events.EventTypeUserCreated, func(hctx context.Context, _ events.Event) error {
			seen <- hctx.Err()
			return nil
		})

		Expect(bus.Publish(ctx, events.NewUserEvent(events.EventTypeUserCreated, "u-1", "n-1", "admin"))).To(Succeed())
		cancel()
		bus.Wait()

		Expect(<-seen).To(BeNil())
	})

	It("should subscribe one handler to many types", func() {
		var got []string
		bus.SubscribeAll(events.AllEventTypes, func(_ context.Context, e events.Event) error {
			got = append(got, e.EventType())
			return nil
		})

		for _, t := range events.AllEventTypes {
			Expect(bus.PublishSync(context.Background(), events.NewNodeEvent(t, "n-1", "", "admin"))).To(Succeed())
		}
		Expect(got).To(Equal(events.AllEventTypes))
	})

	It("should surface handler failures from PublishSync only", func() {
		bus.Subscribe(events.EventTypeUserArchived, func(context.Context, events.Event) error {
			return errors.New("sink down")
		})
		event := events.NewUserEvent(events.EventTypeUserArchived, "u-1", "n-1", "admin")

		Expect(bus.Publish(context.Background(), event)).To(Succeed())
		bus.Wait()
		Expect(bus.PublishSync(context.Background(), event)).To(MatchError(ContainSubstring("sink down")))
	})

	It("should run every sync handler and turn panics into errors", func() {
		var ran atomic.Int32
		bus.Subscribe(events.EventTypeNodeUpdated, func(context.Context, events.Event) error {
			panic("boom")
		})
		bus.Subscribe(events.EventTypeNodeUpdated, func(context.Context, events.Event) error {
			ran.Add(1)
			return nil
		})
		event := events.NewNodeEvent(events.EventTypeNodeUpdated, "n-1", "", "admin")

		Expect(bus.PublishSync(context.Background(), event)).To(MatchError(ContainSubstring("panicked: boom")))
		Expect(ran.Load()).To(BeEquivalentTo(1))

		Expect(bus.Publish(context.Background(), event)).To(Succeed())
		bus.Wait()
		Expect(ran.Load()).To(BeEquivalentTo(2))
	})

	It("should carry ids in both the typed fields and the payload", func() {
		e := events.NewUserEvent(events.EventTypeUserRestored, "u-1", "n-1", "admin")

		Expect(e.EventID()).NotTo(BeEmpty())
		Expect(e.UserID).To(Equal("u-1"))
		Expect(e.Payload()).To(HaveKeyWithValue("node_id", "n-1"))
	})
})
