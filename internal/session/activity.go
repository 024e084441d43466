package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/browser"
	"github.com/shehryarbajwa/decoyd/internal/timing"
)

// step performs one activity. Driver calls run on a context that stop
// cannot cancel so a page interaction always completes; only the pauses
// between them are cut short. A non-nil error ends the loop.
func (s *Session) step(ctx context.Context) error {
	sites := s.cfg.Catalogue.Sites()
	if len(sites) > 0 && s.policy.Chance(visitProbability) {
		site, _ := timing.Choice(s.policy, sites)
		return s.visit(ctx, site)
	}
	return s.search(ctx)
}

func (s *Session) visit(ctx context.Context, site string) error {
	dctx := context.WithoutCancel(ctx)

	s.logger.Info("visiting", zap.String("url", site))
	if err := s.driver.Visit(dctx, site); err != nil {
		return s.skip("navigation failed", err)
	}
	s.tracker.RecordVisit(site)

	if err := s.sleep(ctx, s.policy.Pause(1.5, 3.0)); err != nil {
		return err
	}

	dwellMax := s.cfg.Activity.PageDwellMax
	if s.policy.Chance(extendDwellChance) {
		dwellMax *= 2
		s.logger.Debug("extended visit")
	}
	dwell := s.policy.Delay(s.cfg.Activity.PageDwellMin, dwellMax)

	if err := s.interact(ctx); err != nil {
		return err
	}
	return s.sleep(ctx, seconds(dwell-visitInteractionTime))
}

func (s *Session) search(ctx context.Context) error {
	dctx := context.WithoutCancel(ctx)

	engine, _ := timing.Choice(s.policy, searchEngines)
	query := timing.ChoiceOr(s.policy, s.cfg.Catalogue.SearchQueries, fallbackQuery)

	s.logger.Info("searching", zap.String("query", query), zap.String("engine", engine))
	if err := s.driver.Visit(dctx, engine); err != nil {
		return s.skip("navigation failed", err)
	}
	if err := s.driver.FillSearchForm(dctx, query); err != nil {
		return s.skip("search not submitted", err)
	}
	s.tracker.RecordSearch(query)
	s.tracker.RecordFormFill()

	dwell := s.policy.Delay(searchDwellMin, searchDwellMax)
	if err := s.interact(ctx); err != nil {
		return err
	}
	return s.sleep(ctx, seconds(dwell-searchInteraction))
}

// interact closes popups and then works the page in one of three styles.
func (s *Session) interact(ctx context.Context) error {
	dctx := context.WithoutCancel(ctx)
	scrolling := s.cfg.Clicking.ScrollingEnabled()

	if err := s.driver.HandlePopups(dctx); err != nil {
		if err := s.skip("popup handling failed", err); err != nil {
			return err
		}
	}
	if err := s.sleep(ctx, s.policy.Pause(0.5, 1.0)); err != nil {
		return err
	}

	style, _ := timing.Choice(s.policy, interactionStyles)
	s.logger.Debug("interacting", zap.String("style", string(style)))

	switch style {
	case styleDeepRead:
		if scrolling {
			if err := s.skip("scroll failed", s.driver.NaturalScroll(dctx)); err != nil {
				return err
			}
		}
		if err := s.skip("hover failed", s.driver.HoverElements(dctx)); err != nil {
			return err
		}
		return s.clicks(ctx, s.policy.IntRange(1, 2), func() time.Duration {
			return s.policy.Pause(1.5, 3.0)
		})

	case styleMediaFocus:
		if err := s.skip("media interaction failed", s.driver.InteractWithMedia(dctx)); err != nil {
			return err
		}
		if !scrolling {
			return nil
		}
		if err := s.skip("scroll failed", s.driver.Scroll(dctx, s.policy.IntRange(300, 600))); err != nil {
			return err
		}
		if err := s.sleep(ctx, s.policy.Pause(1.0, 2.0)); err != nil {
			return err
		}
		return s.skip("media interaction failed", s.driver.InteractWithMedia(dctx))

	default:
		n := s.policy.IntRange(s.cfg.Clicking.ClicksPerPageMin, s.cfg.Clicking.ClicksPerPageMax)
		if err := s.clicks(ctx, n, func() time.Duration {
			return s.policy.Duration(2, 5)
		}); err != nil {
			return err
		}
		if !scrolling {
			return nil
		}
		if err := s.skip("scroll failed", s.driver.Scroll(dctx, s.policy.IntRange(300, 1000))); err != nil {
			return err
		}
		return s.sleep(ctx, time.Second)
	}
}

func (s *Session) clicks(ctx context.Context, n int, gap func() time.Duration) error {
	dctx := context.WithoutCancel(ctx)
	for i := 0; i < n; i++ {
		err := s.driver.RandomClick(dctx)
		if err == nil {
			s.tracker.RecordClick()
		} else if err := s.skip("click failed", err); err != nil {
			return err
		}
		if err := s.sleep(ctx, gap()); err != nil {
			return err
		}
	}
	return nil
}

// skip logs a recoverable driver error and swallows it. Fatal errors are
// passed through so the loop stops.
func (s *Session) skip(what string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, browser.ErrFatal) {
		return err
	}
	s.logger.Debug(what, zap.Error(err))
	return nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
