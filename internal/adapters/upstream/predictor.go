package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/matchday/internal/domain/failure"
)

// MaxGoals bounds a parsed score; larger numbers are treated as noise.
const MaxGoals = 20

// ErrUnparsable means the forecaster answered without a usable score.
var ErrUnparsable = errors.New("no score found in forecast output")

var scorePattern = regexp.MustCompile(`(\d{1,2})\s*(?:-|:|–|to)\s*(\d{1,2})`)

// ParsePrediction extracts a (home, away) score pair from forecaster output.
// A JSON object with home and away fields wins over free text; in free text
// the first score-like pair is used.
func ParsePrediction(out string) (home, away int, err error) {
	text := strings.TrimSpace(out)
	if strings.HasPrefix(text, "{") {
		var obj struct {
			Home *int `json:"home"`
			Away *int `json:"away"`
		}
		if json.Unmarshal([]byte(text), &obj) == nil && obj.Home != nil && obj.Away != nil {
			return checkScore(*obj.Home, *obj.Away)
		}
	}
	m := scorePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, failure.Permanent("upstream.parse_prediction", ErrUnparsable)
	}
	h, _ := strconv.Atoi(m[1])
	a, _ := strconv.Atoi(m[2])
	return checkScore(h, a)
}

func checkScore(h, a int) (int, int, error) {
	if h < 0 || a < 0 || h > MaxGoals || a > MaxGoals {
		return 0, 0, failure.Permanent("upstream.parse_prediction", fmt.Errorf("%w: %d-%d", ErrUnparsable, h, a))
	}
	return h, a, nil
}

// PredictorClient calls one provider of the HTTP inference gateway.
type PredictorClient struct {
	provider string
	c        *client
}

var _ Predictor = (*PredictorClient)(nil)

// NewPredictorClient creates a predictor bound to provider.
func NewPredictorClient(provider, baseURL, apiKey string, timeout time.Duration, opts ...ClientOption) *PredictorClient {
	return &PredictorClient{provider: provider, c: newClient(baseURL, apiKey, timeout, opts...)}
}

type predictBody struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

func (p *PredictorClient) Predict(ctx context.Context, req PredictRequest) (string, error) {
	op := "upstream.predict." + p.provider
	var out struct {
		Output string `json:"output"`
	}
	body := predictBody{Model: req.Model, Prompt: Prompt(req)}
	if err := p.c.post(ctx, op, "/v1/providers/"+url.PathEscape(p.provider)+"/predict", body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.Output) == "" {
		return "", failure.Transient(op, ErrUnparsable)
	}
	return out.Output, nil
}

// Prompt renders the fixture context handed to a forecaster.
func Prompt(req PredictRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Predict the final score of %s vs %s", req.Fixture.HomeTeam, req.Fixture.AwayTeam)
	if !req.Kickoff.IsZero() {
		fmt.Fprintf(&b, " (kickoff %s)", req.Kickoff.UTC().Format(time.RFC3339))
	}
	b.WriteString(".\n")
	if a := req.Analysis; a.HasData() {
		if a.HomeOdds.Valid && a.DrawOdds.Valid && a.AwayOdds.Valid {
			fmt.Fprintf(&b, "Odds 1X2: %s / %s / %s\n", a.HomeOdds.Decimal.StringFixed(2), a.DrawOdds.Decimal.StringFixed(2), a.AwayOdds.Decimal.StringFixed(2))
		}
		if a.HomeForm != "" || a.AwayForm != "" {
			fmt.Fprintf(&b, "Form: %s / %s\n", a.HomeForm, a.AwayForm)
		}
		fmt.Fprintf(&b, "Injuries: %d / %d\n", a.HomeInjuries, a.AwayInjuries)
	}
	b.WriteString("Answer with the score only, e.g. 2-1.")
	return b.String()
}
