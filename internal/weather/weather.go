// Package weather reports the current local weather as a short Korean
// sentence, located by IP and scraped from Naver search.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"
)

const (
	Unavailable = "날씨 정보 조회 불가"
	DefaultCity = "서울"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

var cityNames = map[string]string{
	"Seoul": "서울", "Busan": "부산", "Incheon": "인천", "Daegu": "대구",
	"Daejeon": "대전", "Gwangju": "광주", "Suwon": "수원", "Ulsan": "울산",
	"Jeonju": "전주", "Jeju": "제주", "Seongnam": "성남", "Goyang": "고양",
	"Yongin": "용인", "Cheongju": "청주", "Cheonan": "천안", "Pohang": "포항",
}

type Config struct {
	LocateURL     string
	SearchURL     string
	LocateTimeout time.Duration
	ScrapeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		LocateURL:     "https://ipinfo.io/json",
		SearchURL:     "https://search.naver.com/search.naver",
		LocateTimeout: 3 * time.Second,
		ScrapeTimeout: 5 * time.Second,
	}
}

type Client struct {
	cfg  Config
	http *http.Client
}

// New returns a weather client. A nil httpClient uses http.DefaultClient.
func New(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{cfg: cfg, http: httpClient}
}

// Lookup never fails; any error yields Unavailable.
func (c *Client) Lookup(ctx context.Context) string {
	city := c.City(ctx)

	temp, status, err := c.scrape(ctx, city)
	if err != nil {
		log.Warn("Weather lookup failed", "city", city, "err", err)
		return Unavailable
	}
	return fmt.Sprintf("%s 날씨: 기온 %s, 상태 %s", city, temp, status)
}

// City resolves the current city by IP, in Korean when known.
func (c *Client) City(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LocateTimeout)
	defer cancel()

	body, err := c.get(ctx, c.cfg.LocateURL)
	if err != nil {
		log.Debug("Location lookup failed", "err", err)
		return DefaultCity
	}

	name := gjson.GetBytes(body, "city").String()
	if name == "" {
		name = "Seoul"
	}
	if ko, ok := cityNames[name]; ok {
		return ko
	}
	return name
}

func (c *Client) scrape(ctx context.Context, city string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ScrapeTimeout)
	defer cancel()

	u := c.cfg.SearchURL + "?" + url.Values{"query": {city + " 날씨"}}.Encode()
	body, err := c.get(ctx, u)
	if err != nil {
		return "", "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return "", "", fmt.Errorf("parse HTML: %w", err)
	}

	tempSel := doc.Find("div.temperature_text").First()
	statusSel := doc.Find("span.weather.before_slash").First()
	if tempSel.Length() == 0 || statusSel.Length() == 0 {
		return "", "", errors.New("weather block not found")
	}

	temp := strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(tempSel.Text()), "현재 온도", ""))
	status := strings.TrimSpace(statusSel.Text())
	return temp, status, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}
