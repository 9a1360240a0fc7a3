package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/ridecheck/ridecheck/internal/errors"
)

// Provider forwards displayed notifications to an external channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, n *Notification) error
}

// sender is the part of shoutrrr's router the provider uses.
type sender interface {
	Send(message string, params *types.Params) []error
}

// ShoutrrrProvider sends notifications to shoutrrr service URLs such as
// ntfy://, gotify:// or telegram://.
type ShoutrrrProvider struct {
	name    string
	sender  sender
	timeout time.Duration
}

// NewShoutrrrProvider validates urls and builds a provider. A zero timeout
// means the context alone bounds a send.
func NewShoutrrrProvider(name string, urls []string, timeout time.Duration) (*ShoutrrrProvider, error) {
	if len(urls) == 0 {
		return nil, errors.Categorize(errors.New("no shoutrrr URLs configured"), errors.CategoryConfig, "notification")
	}
	router, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.Categorize(fmt.Errorf("invalid shoutrrr URL: %w", err), errors.CategoryConfig, "notification")
	}
	return &ShoutrrrProvider{name: name, sender: router, timeout: timeout}, nil
}

func (p *ShoutrrrProvider) Name() string { return p.name }

// Send delivers n to every URL. Errors from individual services are joined.
func (p *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	params := &types.Params{}
	if n.Title != "" {
		(*params)["title"] = n.Title
	}

	// shoutrrr has no context support; the send finishes in the background
	// if ctx ends first.
	done := make(chan error, 1)
	go func() {
		done <- errors.Join(p.sender.Send(n.Body, params)...)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", p.name, ctx.Err())
	}
}
