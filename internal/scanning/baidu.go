package scanning

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zombor/receipt-ocr/internal/parsing"
)

const (
	baiduDefaultURL = "https://aip.baidubce.com"

	// tokens are refreshed this long before Baidu says they expire
	baiduTokenMargin = 60 * time.Second
)

// Baidu implements the Engine interface using the Baidu cloud OCR API
type Baidu struct {
	apiKey       string
	secretKey    string
	baseURL      string
	languageType string
	client       *http.Client
	now          func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
	initialized bool
}

// NewBaidu creates a new Baidu engine against the public API
func NewBaidu(apiKey, secretKey string) *Baidu {
	return NewBaiduWithURL(apiKey, secretKey, baiduDefaultURL)
}

// NewBaiduWithURL creates a new Baidu engine against a custom base URL for testing
func NewBaiduWithURL(apiKey, secretKey, baseURL string) *Baidu {
	return &Baidu{
		apiKey:       apiKey,
		secretKey:    secretKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		languageType: "CHN_ENG",
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

type baiduTokenResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

type baiduOCRResponse struct {
	ErrorCode   int    `json:"error_code"`
	ErrorMsg    string `json:"error_msg"`
	WordsResult []struct {
		Words       string `json:"words"`
		Probability struct {
			Average float64 `json:"average"`
		} `json:"probability"`
		Location struct {
			Left   float64 `json:"left"`
			Top    float64 `json:"top"`
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		} `json:"location"`
	} `json:"words_result"`
}

// Initialize selects the recognition language and fetches the first access token
func (b *Baidu) Initialize(ctx context.Context, languages []string) error {
	if b.apiKey == "" || b.secretKey == "" {
		return fmt.Errorf("baidu api key and secret key are required")
	}

	languageType := "CHN_ENG"
	if slices.Contains(languages, "en") && !slices.Contains(languages, "ch_sim") {
		languageType = "ENG"
	}

	if _, err := b.token(ctx); err != nil {
		return fmt.Errorf("fetching access token: %w", err)
	}

	b.mu.Lock()
	b.languageType = languageType
	b.initialized = true
	b.mu.Unlock()
	return nil
}

// token returns the cached access token, refreshing it when it is about to
// expire. The token request runs without b.mu held.
func (b *Baidu) token(ctx context.Context) (string, error) {
	b.mu.Lock()
	if b.accessToken != "" && b.now().Before(b.tokenExpiry) {
		token := b.accessToken
		b.mu.Unlock()
		return token, nil
	}
	b.mu.Unlock()

	tokenResp, err := b.fetchToken(ctx)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.accessToken = tokenResp.AccessToken
	b.tokenExpiry = b.now().Add(time.Duration(tokenResp.ExpiresIn)*time.Second - baiduTokenMargin)
	return b.accessToken, nil
}

// fetchToken exchanges the client credentials for a new access token
func (b *Baidu) fetchToken(ctx context.Context) (*baiduTokenResponse, error) {
	query := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {b.apiKey},
		"client_secret": {b.secretKey},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/oauth/2.0/token?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling baidu token API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("baidu token API error (status %d): %s", resp.StatusCode, string(body))
	}

	var tokenResp baiduTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("baidu token API returned no token: %s %s", tokenResp.Error, tokenResp.ErrorDescription)
	}
	return &tokenResp, nil
}

// RecognizeText runs Baidu's high accuracy recognition on the image
func (b *Baidu) RecognizeText(ctx context.Context, imageData []byte, contentType string) ([]parsing.Fragment, error) {
	b.mu.Lock()
	initialized, languageType := b.initialized, b.languageType
	b.mu.Unlock()
	if !initialized {
		return nil, ErrEngineNotInitialized
	}

	accessToken, err := b.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching access token: %w", err)
	}

	// Baidu reads JPEG natively; everything else is normalized to PNG
	if ct := strings.ToLower(strings.TrimSpace(contentType)); ct != "image/jpeg" && ct != "image/jpg" {
		imageData, _, _, err = prepareImageData(imageData, contentType)
		if err != nil {
			return nil, err
		}
	}

	form := url.Values{
		"image":            {base64.StdEncoding.EncodeToString(imageData)},
		"language_type":    {languageType},
		"detect_direction": {"true"},
		"probability":      {"true"},
	}
	endpoint := b.baseURL + "/rest/2.0/ocr/v1/accurate_basic?" + url.Values{"access_token": {accessToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling baidu OCR API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("baidu OCR API error (status %d): %s", resp.StatusCode, string(body))
	}

	var ocrResp baiduOCRResponse
	if err := json.NewDecoder(resp.Body).Decode(&ocrResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if ocrResp.ErrorCode != 0 {
		return nil, fmt.Errorf("baidu OCR API error %d: %s", ocrResp.ErrorCode, ocrResp.ErrorMsg)
	}

	fragments := make([]parsing.Fragment, 0, len(ocrResp.WordsResult))
	for _, w := range ocrResp.WordsResult {
		loc := w.Location
		right, bottom := loc.Left+loc.Width, loc.Top+loc.Height
		fragments = append(fragments, parsing.Fragment{
			Text:        w.Words,
			Confidence:  w.Probability.Average,
			BoundingBox: []float64{loc.Left, loc.Top, right, loc.Top, right, bottom, loc.Left, bottom},
		})
	}
	return fragments, nil
}

// Info describes the Baidu engine
func (b *Baidu) Info() EngineInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return EngineInfo{
		Name:        "BaiduOCR",
		Version:     "1.0.0",
		Languages:   []string{"CHN_ENG", "ENG"},
		Initialized: b.initialized,
	}
}

// Close is a no-op for the HTTP client
func (b *Baidu) Close() error {
	return nil
}
