package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"slices"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/peekapi/peekapi/internal/errors"
	"github.com/peekapi/peekapi/internal/logger"
)

// Sender delivers one message to the configured services.
type Sender interface {
	Send(ctx context.Context, title, message string) error
}

// ShoutrrrSender sends via nicholas-fedor/shoutrrr.
// Creates a single router for multiple URLs.
type ShoutrrrSender struct {
	urls   []string
	sender *router.ServiceRouter
}

// NewShoutrrrSender validates urls and builds the router. Errors never
// include the URLs since they usually carry tokens.
func NewShoutrrrSender(urls []string, timeout time.Duration) (*ShoutrrrSender, error) {
	if len(urls) == 0 {
		return nil, errors.Newf("at least one notification URL is required").
			Component("notification").
			Category(errors.CategoryConfiguration).
			Build()
	}

	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, errors.Newf("invalid notification URL: %s", logger.RedactSensitiveData(err.Error())).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("url_count", len(urls)).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &ShoutrrrSender{urls: slices.Clone(urls), sender: sender}, nil
}

// Send implements Sender. The router applies its own timeout.
func (s *ShoutrrrSender) Send(_ context.Context, title, message string) error {
	params := stypes.Params{}
	if title != "" {
		params.SetTitle(title)
	}

	var failed []error
	for i, err := range s.sender.Send(message, &params) {
		if err != nil {
			failed = append(failed, fmt.Errorf("service %d: %s", i, logger.RedactSensitiveData(err.Error())))
		}
	}
	if len(failed) > 0 {
		return errors.New(errors.Join(failed...)).
			Component("notification").
			Category(errors.CategoryNotification).
			Context("failed_services", len(failed)).
			Context("total_services", len(s.urls)).
			Build()
	}
	return nil
}
