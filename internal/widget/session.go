package widget

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/kjstillabower/location-weather/internal/service"
)

// Refresher is the operation the widget drives.
type Refresher interface {
	Refresh(ctx context.Context, force bool) (service.Outcome, error)
}

// Session is the interactive terminal widget. It refreshes once on start, then
// reads one command per line: "r" forces a refresh, "q" or end of input quits.
type Session struct {
	refresher Refresher
	logger    *zap.Logger
}

func NewSession(refresher Refresher, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{refresher: refresher, logger: logger}
}

// Run drives the session until the user quits, input ends or ctx is done.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.show(ctx, out, false); err != nil {
		return err
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return err
		case line := <-lines:
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "r":
				if err := s.show(ctx, out, true); err != nil {
					return err
				}
			case "q":
				return nil
			case "":
			default:
				if _, err := fmt.Fprintf(out, "Commandes : r = %s, q = quitter\n", RefreshLabel); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Session) show(ctx context.Context, out io.Writer, force bool) error {
	if err := Render(out, Loading()); err != nil {
		return err
	}
	result := FromRefresh(s.refresher.Refresh(ctx, force))
	if result.State == StateError {
		s.logger.Debug("refresh failed", zap.Bool("force", force), zap.String("kind", string(result.Kind)), zap.Error(result.Err))
	}
	return Render(out, result)
}
