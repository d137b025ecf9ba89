package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Portal endpoints, relative to the configured base URL.
const (
	loginPath      = "/CentriDiagnostici/MenuCentri"
	statusPath     = "/GestionePNR/CercaQuadro"
	gridPath       = "/CentriDiagnostici/ControlloQuadri/GridAutorizzazioni_Read"
	identifyPath   = "/CentriDiagnostici/ControlloQuadri/CercaQuadro"
	confirmPath    = "/CentriDiagnostici/ControlloQuadri/ConfermaQuadro"
	categoriesPath = "/CentriDiagnostici/ControlloQuadri/CategorieOfferte"
	verifyPath     = "/CentriDiagnostici/ControlloQuadri/VerificaPrestazione"
	submitPath     = "/CentriDiagnostici/ControlloQuadri/IstruisciQuadro"
	printPath      = "/CentriDiagnostici/ControlloQuadri/StampaAutorizzazione"
)

// Config holds the connection settings for one portal session.
type Config struct {
	BaseURL  string
	Username string
	Password string

	// RequestsPerSecond paces every portal request. Zero disables
	// pacing (tests).
	RequestsPerSecond float64

	// ReadyTimeout and PollInterval bound the wait for the portal to
	// expose the category list after a state-changing action.
	ReadyTimeout time.Duration
	PollInterval time.Duration

	// Timeout applies to each individual request.
	Timeout time.Duration
}

// Client is the HTTP implementation of Session. It owns a cookie jar so
// the portal's server-side session survives across calls.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

var _ Session = (*Client)(nil)

// NewClient builds a portal client. The session is not established
// until Login.
func NewClient(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 15 * time.Second
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{
		cfg:     cfg,
		http:    &http.Client{Jar: jar, Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
	}, nil
}

// Login submits the credential form twice. The portal silently ignores
// the first submission; the quirk is documented behavior, not optional.
func (c *Client) Login(ctx context.Context) error {
	if c.cfg.Username == "" || c.cfg.Password == "" {
		return ErrMissingCredentials
	}

	form := url.Values{
		"UserName": {c.cfg.Username},
		"Password": {c.cfg.Password},
	}
	for i := 0; i < 2; i++ {
		if _, err := c.postForm(ctx, "login", loginPath, form); err != nil {
			return err
		}
	}

	c.log.Debug().Msg("portal session established")
	return nil
}

// FetchReferenceStatus returns the reference's status page body.
func (c *Client) FetchReferenceStatus(ctx context.Context, reference string) (string, error) {
	body, err := c.get(ctx, "fetch reference status", statusPath+"?PNR="+url.QueryEscape(reference))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// gridResponse is the shape of the paginated authorization lookup.
type gridResponse struct {
	Data []struct {
		NumeroAuth string `json:"NumeroAuth"`
	} `json:"Data"`
}

// FetchAuthorizationID queries the authorization grid filtered by the
// reference code and takes the first record. Uniqueness is assumed by
// the portal, not verified here.
func (c *Client) FetchAuthorizationID(ctx context.Context, reference string) (string, error) {
	form := url.Values{
		"page":        {"1"},
		"pageSize":    {"50"},
		"FieldFilter": {reference},
	}
	body, err := c.postForm(ctx, "fetch authorization id", gridPath, form)
	if err != nil {
		return "", err
	}

	var grid gridResponse
	if err := json.Unmarshal(body, &grid); err != nil {
		return "", &CommunicationError{Op: "fetch authorization id", URL: gridPath, Err: err}
	}
	if len(grid.Data) == 0 {
		return "", &CommunicationError{
			Op:  "fetch authorization id",
			URL: gridPath,
			Err: fmt.Errorf("no authorization record for reference %s", reference),
		}
	}

	return grid.Data[0].NumeroAuth, nil
}

// AcceptRequest runs the accept-request procedure: identify the patient
// by reference, confirm, wait for the portal to offer its category
// list, pick one, verify it and submit the request annotated with the
// exam code.
func (c *Client) AcceptRequest(ctx context.Context, reference, examCode, serviceCategory string) error {
	if _, err := c.postForm(ctx, "identify patient", identifyPath, url.Values{"PNR": {reference}}); err != nil {
		return err
	}
	if _, err := c.postForm(ctx, "confirm patient", confirmPath, url.Values{"PNR": {reference}}); err != nil {
		return err
	}

	// The portal populates the category list asynchronously after the
	// confirmation. Poll with a bounded timeout instead of sleeping a
	// fixed interval.
	var offered []string
	err := c.waitFor(ctx, "category list", func(ctx context.Context) (bool, error) {
		var err error
		offered, err = c.fetchCategories(ctx, reference)
		if err != nil {
			return false, err
		}
		return len(offered) > 0, nil
	})
	if err != nil {
		return err
	}

	chosen, err := chooseCategory(offered, serviceCategory)
	if err != nil {
		return err
	}
	c.log.Debug().Str("reference", reference).Str("category", chosen).Msg("service category selected")

	verify := url.Values{"PNR": {reference}, "Categoria": {chosen}}
	if _, err := c.postForm(ctx, "verify category", verifyPath, verify); err != nil {
		return err
	}

	submit := url.Values{"PNR": {reference}, "NoteAuth": {examCode}}
	if _, err := c.postForm(ctx, "submit request", submitPath, submit); err != nil {
		return err
	}

	return nil
}

func (c *Client) fetchCategories(ctx context.Context, reference string) ([]string, error) {
	body, err := c.get(ctx, "fetch categories", categoriesPath+"?PNR="+url.QueryEscape(reference))
	if err != nil {
		return nil, err
	}

	var offered []string
	if err := json.Unmarshal(body, &offered); err != nil {
		return nil, &CommunicationError{Op: "fetch categories", URL: categoriesPath, Err: err}
	}
	return offered, nil
}

// DownloadDocument retrieves the printed authorization document for an
// identifier and returns its raw bytes. Persisting and interpreting the
// document belong to the caller.
func (c *Client) DownloadDocument(ctx context.Context, authorizationID string) ([]byte, error) {
	return c.get(ctx, "download document", printPath+"?PIC="+url.QueryEscape(authorizationID))
}

// Close releases the underlying transport. The portal has no explicit
// logout endpoint; dropping the session cookie is sufficient.
func (c *Client) Close(ctx context.Context) error {
	c.http.CloseIdleConnections()
	return nil
}

// waitFor polls check until it reports ready or the ready timeout
// elapses.
func (c *Client) waitFor(ctx context.Context, what string, check func(context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ready, err := check(ctx)
		if err != nil {
			return err
		}
		if ready {
			return nil
		}

		select {
		case <-ctx.Done():
			return &CommunicationError{
				Op:  "wait for " + what,
				URL: c.cfg.BaseURL,
				Err: ctx.Err(),
			}
		case <-ticker.C:
		}
	}
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return nil, &CommunicationError{Op: op, URL: path, Err: err}
	}
	return c.do(op, path, req)
}

func (c *Client) postForm(ctx context.Context, op, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &CommunicationError{Op: op, URL: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(op, path, req)
}

func (c *Client) do(op, path string, req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, &CommunicationError{Op: op, URL: path, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &CommunicationError{Op: op, URL: path, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CommunicationError{Op: op, URL: path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &CommunicationError{
			Op:  op,
			URL: path,
			Err: fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	return body, nil
}
