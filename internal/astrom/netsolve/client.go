// Package netsolve is an HTTP client for a blind astrometric index
// solver service. The service finds a linear WCS from star-pattern
// matching alone; this client submits a source list, polls the job
// until it settles, and fetches the calibration. It is the default
// BlindSolver behind the solve loop's interface.
package netsolve

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/banshee-data/skyfit/internal/astrom"
	"github.com/banshee-data/skyfit/internal/httputil"
	"github.com/banshee-data/skyfit/internal/timeutil"
)

// Job status values reported by the solver service.
const (
	statusSolving = "solving"
	statusSuccess = "success"
	statusFailure = "failure"
)

// Client talks to a blind solver service. A failed solve (the service
// searched and found nothing) is reported as ok=false, not an error;
// errors are reserved for transport and protocol failures.
type Client struct {
	BaseURL      string
	HTTP         httputil.HTTPClient
	Clock        timeutil.Clock
	PollInterval time.Duration // Delay between job status polls
	MaxPolls     int           // Polls before giving up on a stuck job
}

// NewClient creates a Client for the solver at baseURL with default
// polling policy.
func NewClient(baseURL string, httpClient httputil.HTTPClient) *Client {
	if httpClient == nil {
		httpClient = httputil.NewStandardClient(nil)
	}
	return &Client{
		BaseURL:      baseURL,
		HTTP:         httpClient,
		Clock:        timeutil.RealClock{},
		PollInterval: 2 * time.Second,
		MaxPolls:     150,
	}
}

type solveRequest struct {
	Stars           []starUpload `json:"stars"`
	AllowDistortion bool         `json:"allow_distortion"`
	MatchThreshold  float64      `json:"match_threshold"`
}

type starUpload struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Flux float64 `json:"flux"`
}

type solveSubmitResponse struct {
	JobID string `json:"job_id"`
}

type solveStatusResponse struct {
	Status string   `json:"status"`
	WCS    *wireWCS `json:"wcs,omitempty"`
}

type wireWCS struct {
	CRVal1 float64 `json:"crval1"`
	CRVal2 float64 `json:"crval2"`
	CRPix1 float64 `json:"crpix1"`
	CRPix2 float64 `json:"crpix2"`
	CD11   float64 `json:"cd11"`
	CD12   float64 `json:"cd12"`
	CD21   float64 `json:"cd21"`
	CD22   float64 `json:"cd22"`
}

// Solve submits the brightest sources to the solver service and waits
// for the job to settle. The call blocks for the full poll budget in
// the worst case; callers wanting a timeout should wrap the underlying
// http.Client.
func (c *Client) Solve(sources []astrom.Source, opts astrom.BlindSolveOptions) (*astrom.TanWCS, bool, error) {
	if len(sources) == 0 {
		return nil, false, astrom.ErrNoSources
	}

	upload := sources
	if opts.NumBrightStars > 0 {
		upload = astrom.BrightestN(sources, opts.NumBrightStars)
	}
	req := solveRequest{
		Stars:           make([]starUpload, len(upload)),
		AllowDistortion: opts.AllowDistortion,
		MatchThreshold:  opts.MatchThreshold,
	}
	for i, s := range upload {
		req.Stars[i] = starUpload{X: s.X, Y: s.Y, Flux: s.Flux}
	}

	jobID, err := c.submit(req)
	if err != nil {
		return nil, false, err
	}

	for poll := 0; poll < c.MaxPolls; poll++ {
		status, err := c.jobStatus(jobID)
		if err != nil {
			return nil, false, err
		}
		switch status.Status {
		case statusSuccess:
			if status.WCS == nil {
				return nil, false, fmt.Errorf("netsolve: job %s succeeded without a calibration", jobID)
			}
			return &astrom.TanWCS{
				CRVal1: status.WCS.CRVal1,
				CRVal2: status.WCS.CRVal2,
				CRPix1: status.WCS.CRPix1,
				CRPix2: status.WCS.CRPix2,
				CD:     [4]float64{status.WCS.CD11, status.WCS.CD12, status.WCS.CD21, status.WCS.CD22},
			}, true, nil
		case statusFailure:
			return nil, false, nil
		case statusSolving:
			c.Clock.Sleep(c.PollInterval)
		default:
			return nil, false, fmt.Errorf("netsolve: job %s reported unknown status %q", jobID, status.Status)
		}
	}

	return nil, false, fmt.Errorf("netsolve: job %s did not settle after %d polls", jobID, c.MaxPolls)
}

func (c *Client) submit(req solveRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("netsolve: encode solve request: %w", err)
	}

	resp, err := c.HTTP.Post(c.BaseURL+"/api/solve", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("netsolve: submit solve job: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("netsolve: solver returned status %d on submit", resp.StatusCode)
	}

	var submit solveSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submit); err != nil {
		return "", fmt.Errorf("netsolve: decode submit response: %w", err)
	}
	if submit.JobID == "" {
		return "", fmt.Errorf("netsolve: solver accepted job without an id")
	}
	return submit.JobID, nil
}

func (c *Client) jobStatus(jobID string) (*solveStatusResponse, error) {
	resp, err := c.HTTP.Get(c.BaseURL + "/api/solve/" + jobID)
	if err != nil {
		return nil, fmt.Errorf("netsolve: poll job %s: %w", jobID, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("netsolve: solver returned status %d for job %s", resp.StatusCode, jobID)
	}

	var status solveStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("netsolve: decode job %s status: %w", jobID, err)
	}
	return &status, nil
}
