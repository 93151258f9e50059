package support

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/idscan/internal/document"
	"github.com/MeKo-Tech/idscan/internal/session"
)

// RegisterSessionSteps registers the scan session steps.
func (tc *TestContext) RegisterSessionSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a scanner recognizing a "([^"]*)" capture$`, tc.useFixture)
	sc.Step(`^recognition is held$`, tc.recognitionIsHeld)
	sc.Step(`^recognition has started$`, tc.recognitionHasStarted)
	sc.Step(`^recognition is released$`, tc.recognitionIsReleased)
	sc.Step(`^I submit a capture$`, tc.iSubmitACapture)
	sc.Step(`^I submit the bytes "([^"]*)"$`, tc.iSubmitTheBytes)
	sc.Step(`^I cancel the current session$`, tc.iCancelTheCurrentSession)
	sc.Step(`^the session finishes with status "([^"]*)"$`, tc.theSessionFinishesWithStatus)
	sc.Step(`^the transitions are "([^"]*)"$`, tc.theTransitionsAre)
	sc.Step(`^the result uses template "([^"]*)"$`, tc.theResultUsesTemplate)
	sc.Step(`^field "([^"]*)" is "([^"]*)"$`, tc.fieldIs)
	sc.Step(`^the result has note "([^"]*)"$`, tc.theResultHasNote)
	sc.Step(`^exactly (\d+) results? (?:is|are) delivered$`, tc.exactlyResultsAreDelivered)
	sc.Step(`^no result is delivered$`, tc.noResultIsDelivered)
	sc.Step(`^the first session ended "([^"]*)" because "([^"]*)"$`, tc.theFirstSessionEnded)
	sc.Step(`^the result belongs to the latest session$`, tc.theResultBelongsToTheLatestSession)
}

func (tc *TestContext) recognitionIsHeld() error {
	tc.Engine.Gate()
	return nil
}

func (tc *TestContext) recognitionHasStarted() error {
	select {
	case <-tc.Engine.Started():
		return nil
	case <-time.After(waitFor):
		return fmt.Errorf("recognition did not start")
	}
}

func (tc *TestContext) recognitionIsReleased() error {
	tc.Engine.Release()
	return nil
}

func (tc *TestContext) iSubmitACapture() error {
	data, err := capturePNG()
	if err != nil {
		return err
	}
	return tc.submit(data, document.FormatPNG)
}

func (tc *TestContext) iSubmitTheBytes(s string) error {
	return tc.submit([]byte(s), document.FormatAuto)
}

func (tc *TestContext) submit(data []byte, format document.Format) error {
	h, err := tc.scanner().Submit(context.Background(), data, format, today)
	if err != nil {
		return err
	}
	tc.mu.Lock()
	tc.handles = append(tc.handles, h)
	tc.mu.Unlock()
	return nil
}

func (tc *TestContext) iCancelTheCurrentSession() error {
	if !tc.scanner().Cancel(tc.scanner().Current()) {
		return fmt.Errorf("no session to cancel")
	}
	return nil
}

// lastResult waits for a result of the latest session.
func (tc *TestContext) lastResult() (*document.ScanResult, error) {
	var res *document.ScanResult
	err := tc.eventually(func() bool {
		results, _ := tc.snapshot()
		if len(results) == 0 {
			return false
		}
		res = results[len(results)-1]
		return true
	}, "a scan result")
	return res, err
}

func (tc *TestContext) theSessionFinishesWithStatus(status string) error {
	res, err := tc.lastResult()
	if err != nil {
		return err
	}
	if string(res.Status) != status {
		return fmt.Errorf("expected status %s, got %s (notes %v)", status, res.Status, res.Notes)
	}
	return nil
}

func (tc *TestContext) theTransitionsAre(list string) error {
	res, err := tc.lastResult()
	if err != nil {
		return err
	}
	_, transitions := tc.snapshot()
	var got []string
	for _, tr := range transitions {
		if tr.SessionID == res.SessionID {
			got = append(got, string(tr.To))
		}
	}
	want := strings.Split(list, ", ")
	if !slices.Equal(want, got) {
		return fmt.Errorf("expected transitions %v, got %v", want, got)
	}
	return nil
}

func (tc *TestContext) theResultUsesTemplate(id string) error {
	res, err := tc.lastResult()
	if err != nil {
		return err
	}
	if res.TemplateID != id {
		return fmt.Errorf("expected template %s, got %s", id, res.TemplateID)
	}
	return nil
}

func (tc *TestContext) fieldIs(name, value string) error {
	res, err := tc.lastResult()
	if err != nil {
		return err
	}
	f, ok := res.Fields[name]
	if !ok {
		return fmt.Errorf("field %s missing", name)
	}
	if f.Value == nil || f.Value.Text != value {
		return fmt.Errorf("field %s: expected %q, got %s (raw %q, failure %s)", name, value, f.Value.String(), f.RawValue, f.Failure)
	}
	return nil
}

func (tc *TestContext) theResultHasNote(code string) error {
	res, err := tc.lastResult()
	if err != nil {
		return err
	}
	for _, n := range res.Notes {
		if n.Code == code {
			return nil
		}
	}
	return fmt.Errorf("note %s not in %v", code, res.Notes)
}

// settled waits until the scanner has no session running.
func (tc *TestContext) settled() error {
	return tc.eventually(func() bool { return !tc.scanner().State().Active() }, "the scanner to settle")
}

func (tc *TestContext) exactlyResultsAreDelivered(n int) error {
	if err := tc.settled(); err != nil {
		return err
	}
	// The dispatcher may still be draining the final events.
	if err := tc.eventually(func() bool {
		results, _ := tc.snapshot()
		return len(results) >= n
	}, fmt.Sprintf("%d result(s)", n)); err != nil {
		return err
	}
	results, _ := tc.snapshot()
	if len(results) != n {
		return fmt.Errorf("expected %d result(s), got %d", n, len(results))
	}
	return nil
}

func (tc *TestContext) noResultIsDelivered() error {
	if err := tc.settled(); err != nil {
		return err
	}
	// Close delivers whatever is still queued.
	tc.Scanner.Close()
	results, _ := tc.snapshot()
	if len(results) != 0 {
		return fmt.Errorf("expected no result, got %d", len(results))
	}
	return nil
}

func (tc *TestContext) theFirstSessionEnded(state, reason string) error {
	tc.mu.Lock()
	if len(tc.handles) == 0 {
		tc.mu.Unlock()
		return fmt.Errorf("no session submitted")
	}
	first := tc.handles[0]
	tc.mu.Unlock()

	var last session.Transition
	err := tc.eventually(func() bool {
		_, transitions := tc.snapshot()
		for _, tr := range transitions {
			if tr.SessionID == first.SessionID {
				last = tr
			}
		}
		return string(last.To) == state
	}, "the first session to end "+state)
	if err != nil {
		return fmt.Errorf("%w (last state %s)", err, last.To)
	}
	if last.Reason != reason {
		return fmt.Errorf("expected reason %q, got %q", reason, last.Reason)
	}
	return nil
}

func (tc *TestContext) theResultBelongsToTheLatestSession() error {
	res, err := tc.lastResult()
	if err != nil {
		return err
	}
	latest := tc.scanner().Current()
	if res.SessionID != latest.SessionID || res.Generation != latest.Generation {
		return fmt.Errorf("result of %s/%d, latest session is %s/%d",
			res.SessionID, res.Generation, latest.SessionID, latest.Generation)
	}
	return nil
}
