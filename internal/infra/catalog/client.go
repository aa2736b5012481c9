// Package catalog provides a client for the remote music catalog API.
//
// The catalog speaks a JSON convention where the application-level "code"
// field decides success: 200 and codes of 800 and above are success, anything
// else is a request failure carrying a user-facing message.
package catalog

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/wymusic/player/internal/domain/song"
)

// ErrRequestFailed marks catalog responses rejected by the code convention.
var ErrRequestFailed = errors.New("catalog request failed")

// Quality levels accepted by the playback-url endpoint.
const (
	QualityStandard = "standard"
	QualityHigher   = "higher"
	QualityExHigh   = "exhigh"
	QualityLossless = "lossless"
	QualityHiRes    = "hires"
)

// Config represents catalog client configuration.
type Config struct {
	BaseURL string
	Cookie  string
	Timeout time.Duration
}

// Client is a remote catalog API client.
type Client struct {
	baseURL    string
	cookie     string
	httpClient *http.Client
}

// New creates a new catalog client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("catalog base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		cookie:     cfg.Cookie,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// envelope is the common response wrapper carrying the application code.
type envelope struct {
	Code    int    `json:"code"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

// request performs one catalog call and returns the raw body after the
// application-level code check. Cancellation is carried by ctx.
func (c *Client) request(ctx context.Context, endpoint string, args url.Values) ([]byte, error) {
	if args == nil {
		args = url.Values{}
	}
	if c.cookie != "" {
		args.Set("cookie", c.cookie)
	}

	reqURL := c.baseURL + "/" + endpoint + "?" + args.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}
	if env.Code != 200 && env.Code < 800 {
		msg := env.Msg
		if msg == "" {
			msg = env.Message
		}
		zlog.Debug().Msgf("catalog: request rejected: endpoint=%s code=%d msg=%s", endpoint, env.Code, msg)
		return nil, errors.Mark(errors.Newf("catalog error %d: %s", env.Code, msg), ErrRequestFailed)
	}

	return body, nil
}

// songDetail is the wire form of a catalog song.
type songDetail struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Ar   []struct {
		Name string `json:"name"`
	} `json:"ar"`
	Al struct {
		Name   string `json:"name"`
		PicURL string `json:"picUrl"`
	} `json:"al"`
	Dt int64 `json:"dt"` // duration in milliseconds
}

func (d songDetail) toRemote() song.RemoteSong {
	artists := make([]string, 0, len(d.Ar))
	for _, a := range d.Ar {
		artists = append(artists, a.Name)
	}
	return song.RemoteSong{
		ID:         strconv.FormatInt(d.ID, 10),
		Name:       d.Name,
		Artists:    artists,
		Duration:   time.Duration(d.Dt) * time.Millisecond,
		Album:      d.Al.Name,
		ArtworkRef: forceHTTPS(d.Al.PicURL),
		LastAccess: time.Now(),
	}
}

func toRemoteList(details []songDetail) []song.RemoteSong {
	out := make([]song.RemoteSong, 0, len(details))
	for _, d := range details {
		out = append(out, d.toRemote())
	}
	return out
}

// forceHTTPS rewrites plain-http artwork and media urls.
func forceHTTPS(u string) string {
	return strings.Replace(u, "http://", "https://", 1)
}

// Search searches the catalog by keywords. ctx aborts in-flight requests.
func (c *Client) Search(ctx context.Context, keywords string) ([]song.RemoteSong, error) {
	if keywords == "" {
		return nil, errors.New("keywords are required")
	}

	args := url.Values{}
	args.Set("keywords", keywords)

	body, err := c.request(ctx, "cloudsearch", args)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result struct {
			Songs []songDetail `json:"songs"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to parse search response")
	}
	return toRemoteList(resp.Result.Songs), nil
}

// RecommendSongs retrieves the daily recommendation list.
func (c *Client) RecommendSongs(ctx context.Context) ([]song.RemoteSong, error) {
	body, err := c.request(ctx, "recommend/songs", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			DailySongs []songDetail `json:"dailySongs"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to parse recommendation response")
	}
	return toRemoteList(resp.Data.DailySongs), nil
}

// SongDetail retrieves metadata for the given catalog ids in one call.
func (c *Client) SongDetail(ctx context.Context, ids []string) ([]song.RemoteSong, error) {
	if len(ids) == 0 {
		return nil, errors.New("at least one id is required")
	}

	args := url.Values{}
	args.Set("ids", strings.Join(ids, ","))
	args.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	body, err := c.request(ctx, "song/detail", args)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Songs []songDetail `json:"songs"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to parse detail response")
	}
	return toRemoteList(resp.Songs), nil
}

// SongURL retrieves a time-limited playback url for the id at the given
// quality level.
func (c *Client) SongURL(ctx context.Context, id, quality string) (string, error) {
	if quality == "" {
		quality = QualityStandard
	}

	args := url.Values{}
	args.Set("id", id)
	args.Set("level", quality)
	args.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))

	body, err := c.request(ctx, "song/url/v1", args)
	if err != nil {
		return "", err
	}

	var resp struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "failed to parse url response")
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", errors.Mark(errors.Newf("no playback url for song %s", id), ErrRequestFailed)
	}
	return forceHTTPS(resp.Data[0].URL), nil
}

// Lyric retrieves the raw lyric text for the id.
func (c *Client) Lyric(ctx context.Context, id string) (string, error) {
	args := url.Values{}
	args.Set("id", id)

	body, err := c.request(ctx, "lyric", args)
	if err != nil {
		return "", err
	}

	var resp struct {
		Lrc struct {
			Lyric string `json:"lyric"`
		} `json:"lrc"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(err, "failed to parse lyric response")
	}
	return resp.Lrc.Lyric, nil
}

// Check reports whether the song is available for playback. The returned
// message is user-facing (e.g. VIP-restricted tracks).
func (c *Client) Check(ctx context.Context, id string) (bool, string, error) {
	args := url.Values{}
	args.Set("id", id)

	body, err := c.request(ctx, "check/music", args)
	if err != nil {
		return false, "", err
	}

	var resp struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return false, "", errors.Wrap(err, "failed to parse availability response")
	}
	return resp.Success, resp.Message, nil
}
