package taskexecutor

import (
	"context"
	"strings"
	"time"

	"github.com/flowforge/autoflow/internal/driver"
	"github.com/flowforge/autoflow/internal/model"
)

var passwordFieldSelectors = []string{
	"input[type=password]",
	"input[name*=password]",
	"input[id*=password]",
}

// looksLikeLoginPage reports whether the current page carries a password
// field, the cheapest reliable signal that it is a login/authentication
// screen (spec §4.10 step 3).
func looksLikeLoginPage(ctx context.Context, page driver.Page) bool {
	for _, sel := range passwordFieldSelectors {
		if count, err := page.Locator(sel).Count(ctx); err == nil && count > 0 {
			return true
		}
	}
	return false
}

// loginRecording resolves the transcript to replay for login: the
// dedicated login task's best recording, then the current task's own best
// recording (if it already carries login steps), then any other task in
// the website that has one (spec §4.10 step 3).
func loginRecording(repo Repository, websiteID, currentTaskID string) (model.RecordingTranscript, bool) {
	tasks := repo.TasksByWebsite(websiteID)

	for _, t := range tasks {
		if t.IsDedicatedLogin() {
			if rec, ok := bestRecording(repo.RecordingsByTask(t.ID)); ok {
				return rec.Recording, true
			}
		}
	}

	if rec, ok := bestRecording(repo.RecordingsByTask(currentTaskID)); ok {
		if hasLoginIntent(rec.Actions) {
			return rec.Recording, true
		}
	}

	for _, t := range tasks {
		if t.ID == currentTaskID {
			continue
		}
		if rec, ok := bestRecording(repo.RecordingsByTask(t.ID)); ok {
			if hasLoginIntent(rec.Actions) {
				return rec.Recording, true
			}
		}
	}

	return model.RecordingTranscript{}, false
}

func hasLoginIntent(actions []model.CanonicalAction) bool {
	for _, a := range actions {
		if strings.Contains(a.Intent, "login") {
			return true
		}
	}
	return false
}

// executeTranscript replays a raw transcript's steps directly against the
// page, bypassing canonicalisation. Used for login because selectors may
// not have survived canonicalisation reliably (spec §4.10 step 3).
func executeTranscript(ctx context.Context, page driver.Page, typer *humanTyper, transcript model.RecordingTranscript, params map[string]string) error {
	position := 0
	for _, step := range transcript.Steps {
		switch step.Type {
		case model.StepNavigate:
			if err := page.Goto(ctx, step.URL, 30*time.Second, driver.WaitUntilLoad); err != nil {
				return err
			}
		case model.StepClick:
			sel := rawSelector(step)
			if sel == "" {
				continue
			}
			if err := page.Click(ctx, sel, 10*time.Second); err != nil {
				return err
			}
		case model.StepInput:
			sel := rawSelector(step)
			if sel == "" {
				continue
			}
			value := bindFillValue(step.Value, sel+" "+step.Text, position, params)
			position++
			if typer != nil {
				if err := typer.Type(ctx, page, sel, value); err != nil {
					return err
				}
			} else if err := page.Fill(ctx, sel, value, 10*time.Second); err != nil {
				return err
			}
		case model.StepWaitForSelector:
			sel := rawSelector(step)
			if sel != "" {
				_ = page.WaitForSelector(ctx, sel, 10*time.Second)
			}
		}
	}
	return nil
}

func rawSelector(step model.Step) string {
	if step.Selector != "" {
		return step.Selector
	}
	for _, group := range step.Selectors {
		for _, ref := range group {
			if ref.Value != "" {
				return ref.Value
			}
		}
	}
	return ""
}
