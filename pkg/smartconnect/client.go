// Package smartconnect is a minimal Angel One SmartAPI client covering the
// surface the alert bot needs: session login with TOTP, logout, and
// historical candle data.
package smartconnect

import (
	"bytes"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Config configures the SmartConnect client. Only APIKey is required.
type Config struct {
	APIKey      string
	AccessToken string

	RootURL        string        // default: https://apiconnect.angelone.in
	Timeout        time.Duration // default: 7s
	DisableSSL     bool          // if true, InsecureSkipVerify
	ClientPublicIP string        // resolved if empty
	ClientLocalIP  string        // resolved if empty
	ClientMAC      string        // first interface MAC if empty
}

// SmartConnect is an authenticated SmartAPI HTTP client.
type SmartConnect struct {
	apiKey       string
	accessToken  string
	refreshToken string
	feedToken    string
	userID       string

	rootURL    string
	httpClient *http.Client

	clientPublicIP string
	clientLocalIP  string
	clientMAC      string

	// Called on a 403 TokenException so the owner can re-login.
	SessionExpiryHook func()
}

const defaultRoot = "https://apiconnect.angelone.in"

var routes = map[string]string{
	"api.login":        "/rest/auth/angelbroking/user/v1/loginByPassword",
	"api.logout":       "/rest/secure/angelbroking/user/v1/logout",
	"api.token":        "/rest/auth/angelbroking/jwt/v1/generateTokens",
	"api.user.profile": "/rest/secure/angelbroking/user/v1/getProfile",
	"api.candle.data":  "/rest/secure/angelbroking/historical/v1/getCandleData",
}

// getPublicIP asks ipify for the caller's public address; SmartAPI requires
// it in every request header.
func getPublicIP() (string, error) {
	resp, err := http.Get("https://api.ipify.org?format=text")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	ip, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(ip), nil
}

func getLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, address := range addrs {
		if ipNet, ok := address.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				return ipNet.IP.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no local IP found")
}

func getMAC() string {
	ifs, _ := net.Interfaces()
	for _, ifc := range ifs {
		if len(ifc.HardwareAddr) > 0 {
			return ifc.HardwareAddr.String()
		}
	}
	return "00:11:22:33:44:55"
}

// New initializes the client, resolving the IP/MAC header fields SmartAPI
// insists on.
func New(cfg Config) *SmartConnect {
	if cfg.RootURL == "" {
		cfg.RootURL = defaultRoot
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 7 * time.Second
	}
	if cfg.ClientLocalIP == "" {
		if ip, err := getLocalIP(); err == nil {
			cfg.ClientLocalIP = ip
		} else {
			cfg.ClientLocalIP = "127.0.0.1"
		}
	}
	if cfg.ClientPublicIP == "" {
		if ip, err := getPublicIP(); err == nil {
			cfg.ClientPublicIP = ip
		} else {
			cfg.ClientPublicIP = cfg.ClientLocalIP
		}
	}
	if cfg.ClientMAC == "" {
		cfg.ClientMAC = getMAC()
	}

	tr := &http.Transport{
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.DisableSSL,
		},
	}

	return &SmartConnect{
		apiKey:         cfg.APIKey,
		accessToken:    cfg.AccessToken,
		rootURL:        strings.TrimRight(cfg.RootURL, "/"),
		httpClient:     &http.Client{Transport: tr, Timeout: cfg.Timeout},
		clientPublicIP: cfg.ClientPublicIP,
		clientLocalIP:  cfg.ClientLocalIP,
		clientMAC:      cfg.ClientMAC,
	}
}

func (sc *SmartConnect) requestHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-ClientLocalIP", sc.clientLocalIP)
	h.Set("X-ClientPublicIP", sc.clientPublicIP)
	h.Set("X-MACAddress", sc.clientMAC)
	h.Set("X-PrivateKey", sc.apiKey)
	h.Set("X-UserType", "USER")
	h.Set("X-SourceID", "WEB")
	if sc.accessToken != "" {
		h.Set("Authorization", "Bearer "+sc.accessToken)
	}
	return h
}

func (sc *SmartConnect) post(route string, params map[string]any) (map[string]any, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}
	if params == nil {
		params = map[string]any{}
	}
	b, _ := json.Marshal(params)

	req, err := http.NewRequest(http.MethodPost, sc.rootURL+uri, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header = sc.requestHeaders()

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("couldn't parse JSON response: %w", err)
	}

	// API error style: {"error_type": "TokenException", "message": "..."}
	if et, ok := out["error_type"].(string); ok && et != "" {
		if sc.SessionExpiryHook != nil && resp.StatusCode == http.StatusForbidden && et == "TokenException" {
			sc.SessionExpiryHook()
		}
		msg, _ := out["message"].(string)
		return out, fmt.Errorf("%s: %s", et, msg)
	}
	if st, ok := out["status"].(bool); ok && !st {
		msg, _ := out["message"].(string)
		log.Printf("[smartconnect] %s status=false message=%s", route, msg)
	}
	return out, nil
}

func (sc *SmartConnect) get(route string, params map[string]any) (map[string]any, error) {
	uri, ok := routes[route]
	if !ok {
		return nil, fmt.Errorf("unknown route: %s", route)
	}
	reqURL := sc.rootURL + uri
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, fmt.Sprint(v))
		}
		reqURL += "?" + q.Encode()
	}

	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header = sc.requestHeaders()

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("couldn't parse JSON response: %w", err)
	}
	return out, nil
}

// SetAccessToken replaces the bearer token used for authenticated routes.
func (sc *SmartConnect) SetAccessToken(t string) { sc.accessToken = t }

// FeedToken returns the feed token from the last GenerateSession.
func (sc *SmartConnect) FeedToken() string { return sc.feedToken }

// UserID returns the client code from the last GenerateSession.
func (sc *SmartConnect) UserID() string { return sc.userID }

// GenerateSession logs in with client code, password and a fresh TOTP,
// stores the session tokens and returns the user profile payload.
func (sc *SmartConnect) GenerateSession(clientCode, password, totp string) (map[string]any, error) {
	res, err := sc.post("api.login", map[string]any{
		"clientcode": clientCode, "password": password, "totp": totp,
	})
	if err != nil {
		return res, err
	}

	st, _ := res["status"].(bool)
	if !st {
		return res, errors.New("login failed")
	}
	data, ok := res["data"].(map[string]any)
	if !ok {
		return res, errors.New("unexpected login response format")
	}

	jwtToken, _ := data["jwtToken"].(string)
	refreshToken, _ := data["refreshToken"].(string)
	feedToken, _ := data["feedToken"].(string)

	sc.accessToken = jwtToken
	sc.refreshToken = refreshToken
	sc.feedToken = feedToken

	user, err := sc.GetProfile(refreshToken)
	if err != nil {
		return user, err
	}
	if udata, ok := user["data"].(map[string]any); ok {
		if cc, _ := udata["clientcode"].(string); cc != "" {
			sc.userID = cc
		}
	}
	return user, nil
}

// TerminateSession logs the client code out.
func (sc *SmartConnect) TerminateSession(clientCode string) (map[string]any, error) {
	return sc.post("api.logout", map[string]any{"clientcode": clientCode})
}

// GetProfile fetches the user profile for the session.
func (sc *SmartConnect) GetProfile(refreshToken string) (map[string]any, error) {
	return sc.get("api.user.profile", map[string]any{"refreshToken": refreshToken})
}

// GetCandleData fetches historical OHLCV rows. params follows the SmartAPI
// getCandleData contract (exchange, symboltoken, interval, fromdate, todate).
func (sc *SmartConnect) GetCandleData(params map[string]any) (map[string]any, error) {
	for k, v := range params {
		if v == nil {
			delete(params, k)
		}
	}
	return sc.post("api.candle.data", params)
}
