package solarlog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/anicoll/solarlog-integration/internal/pkg/decoder"
	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

const DefaultTimeout = 10 * time.Second

// Client polls one Solar-Log device. Polls are serialized.
type Client struct {
	password        string
	httpClient      Doer
	ownsHTTPClient  bool
	timeout         time.Duration
	logger          *zap.Logger
	location        *time.Location
	markers         Markers
	sessionTTL      time.Duration
	requestInterval time.Duration
	extended        bool
	enabled         map[string]bool

	baseURL  *url.URL
	sessions *Manager
	query    *Query
	decoder  *decoder.Decoder

	pollMu sync.Mutex
}

// New returns a client for the device at host ("192.168.1.20" or
// "http://solarlog.local"). No request is sent.
func New(host string, opts ...func(*Client)) (*Client, error) {
	baseURL, err := parseHost(host)
	if err != nil {
		return nil, err
	}
	c := &Client{
		timeout:  DefaultTimeout,
		logger:   zap.L(),
		location: time.UTC,
		markers:  DefaultMarkers(),
		baseURL:  baseURL,
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		c.httpClient = defaultHTTPClient(c.timeout)
		c.ownsHTTPClient = true
	}

	var limiter *rate.Limiter
	if c.requestInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(c.requestInterval), 1)
	}
	logger := c.logger.With(zap.String("host", baseURL.Host))
	transport := NewTransport(baseURL, c.httpClient, c.timeout, limiter, logger)

	c.logger = logger
	c.sessions = NewManager(transport, c.password, c.markers, c.sessionTTL, logger)
	c.query = NewQuery(transport)
	c.decoder = decoder.New(decoder.WithLocation(c.location))
	return c, nil
}

func parseHost(host string) (*url.URL, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("solarlog: host is required")
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	u, err := url.Parse(strings.TrimRight(host, "/"))
	if err != nil {
		return nil, fmt.Errorf("solarlog: invalid host %q: %w", host, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("solarlog: invalid host %q", host)
	}
	return u, nil
}

func (c *Client) Host() string {
	return c.baseURL.String()
}

// Login authenticates against the device.
func (c *Client) Login(ctx context.Context) (*Session, error) {
	return c.sessions.Login(ctx)
}

// Logout forgets the current session.
func (c *Client) Logout() {
	c.sessions.Logout()
}

// Close releases idle connections of a client-created connection pool.
func (c *Client) Close() {
	if hc, ok := c.httpClient.(*http.Client); ok && c.ownsHTTPClient {
		hc.CloseIdleConnections()
	}
}

// Ping reports whether the device answers data queries at all. No login is attempted.
func (c *Client) Ping(ctx context.Context) bool {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	_, err := c.query.FetchBasic(ctx, nil)
	if err != nil {
		c.logger.Debug("ping failed", zap.Error(err))
		return false
	}
	return true
}

// ExtendedDataAvailable reports whether the device hands out the device
// list with the configured credentials.
func (c *Client) ExtendedDataAvailable(ctx context.Context) bool {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	body, _, err := c.fetch(ctx, c.query.FetchDeviceList)
	if err != nil {
		c.logger.Debug("extended data not available", zap.Error(err))
		return false
	}
	raw, err := decoder.Parse(body)
	if err != nil {
		return false
	}
	root, ok := raw.(map[string]any)
	if !ok {
		return false
	}
	_, ok = root[decoder.CodeDeviceList]
	return ok
}

// DeviceNames returns the configured name of every occupied device slot.
func (c *Client) DeviceNames(ctx context.Context) (map[int]string, error) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	snapshot, session, err := c.overview(ctx, c.query.FetchDeviceList)
	if err != nil {
		return nil, err
	}
	names := make(map[int]string, len(snapshot.Inverters))
	for _, inv := range snapshot.Inverters {
		if inv.Slot == nil {
			continue
		}
		detail, err := c.detail(ctx, session, *inv.Slot)
		if err != nil {
			return nil, err
		}
		switch {
		case detail != nil && detail.Name != "":
			names[*inv.Slot] = detail.Name
		default:
			names[*inv.Slot] = inv.DisplayName()
		}
	}
	return names, nil
}

// Snapshot polls the device and returns a fresh snapshot. With extended
// data enabled, every inverter's detail record and the energy records are
// queried one after another. Failures of those follow-up queries that are
// about content leave the snapshot partial; transport and auth failures
// are returned.
func (c *Client) Snapshot(ctx context.Context) (*model.DeviceSnapshot, error) {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	snapshot, session, err := c.overview(ctx, c.query.FetchOverview)
	if err != nil {
		return nil, err
	}
	snapshot.Inverters = c.filterEnabled(snapshot.Inverters)

	if !c.extended {
		return snapshot, nil
	}
	for i := range snapshot.Inverters {
		inv := &snapshot.Inverters[i]
		if inv.Slot == nil {
			continue
		}
		detail, err := c.detail(ctx, session, *inv.Slot)
		if err != nil {
			return nil, err
		}
		mergeDetail(inv, detail)
	}
	if err := c.addEnergy(ctx, session, snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

type fetchFunc func(ctx context.Context, s *Session) ([]byte, error)

// fetch runs one query on a valid session. When the answer says the
// session expired, the session is dropped and the query is repeated once
// after a new login.
func (c *Client) fetch(ctx context.Context, fn fetchFunc) ([]byte, *Session, error) {
	session, err := c.sessions.EnsureValid(ctx)
	if err != nil {
		return nil, nil, err
	}
	body, err := fn(ctx, session)
	if err != nil {
		return nil, nil, err
	}
	err = c.sessions.Check(body)
	if !errors.Is(err, ErrSessionExpired) {
		return body, session, err
	}

	c.logger.Info("session expired, logging in again")
	c.sessions.Expire(session)
	if session, err = c.sessions.EnsureValid(ctx); err != nil {
		return nil, nil, err
	}
	if body, err = fn(ctx, session); err != nil {
		return nil, nil, err
	}
	if err = c.sessions.Check(body); err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil, nil, fmt.Errorf("%w: %w", ErrAuth, err)
		}
		return nil, nil, err
	}
	return body, session, nil
}

func (c *Client) overview(ctx context.Context, fn fetchFunc) (*model.DeviceSnapshot, *Session, error) {
	body, session, err := c.fetch(ctx, fn)
	if err != nil {
		return nil, nil, err
	}
	raw, err := decoder.Parse(body)
	if err != nil {
		return nil, nil, fmt.Errorf("solarlog: overview: %w", err)
	}
	snapshot, err := c.decoder.Overview(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("solarlog: overview: %w", err)
	}
	return snapshot, session, nil
}

// detail returns nil without error when the device answer could not be decoded.
func (c *Client) detail(ctx context.Context, session *Session, slot int) (*model.InverterReading, error) {
	body, err := c.query.FetchInverterDetail(ctx, session, slot)
	if err != nil {
		return nil, err
	}
	if err := c.sessions.Check(body); err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return nil, fmt.Errorf("%w: session lost during poll", ErrAuth)
		}
		c.logger.Warn("skipping inverter detail", zap.Int("slot", slot), zap.Error(err))
		return nil, nil
	}
	raw, err := decoder.Parse(body)
	if err == nil {
		var reading *model.InverterReading
		if reading, err = c.decoder.InverterDetail(slot, raw); err == nil {
			return reading, nil
		}
	}
	c.logger.Warn("skipping inverter detail", zap.Int("slot", slot), zap.Error(err))
	return nil, nil
}

func (c *Client) addEnergy(ctx context.Context, session *Session, snapshot *model.DeviceSnapshot) error {
	body, err := c.query.FetchEnergy(ctx, session)
	if err != nil {
		return err
	}
	if err := c.sessions.Check(body); err != nil {
		if errors.Is(err, ErrSessionExpired) {
			return fmt.Errorf("%w: session lost during poll", ErrAuth)
		}
		c.logger.Warn("skipping energy records", zap.Error(err))
		return nil
	}
	raw, err := decoder.Parse(body)
	if err != nil {
		c.logger.Warn("skipping energy records", zap.Error(err))
		return nil
	}
	energy, err := c.decoder.Energy(raw)
	if err != nil {
		c.logger.Warn("skipping energy records", zap.Error(err))
		return nil
	}
	snapshot.Energy = energy.Year
	for i := range snapshot.Inverters {
		inv := &snapshot.Inverters[i]
		if inv.Slot == nil {
			continue
		}
		if wh, ok := energy.PerInverter[*inv.Slot]; ok {
			inv.EnergyToday = &wh
		}
	}
	return nil
}

func (c *Client) filterEnabled(inverters []model.InverterReading) []model.InverterReading {
	if len(c.enabled) == 0 {
		return inverters
	}
	out := inverters[:0]
	for _, inv := range inverters {
		if c.enabled[inv.ID] {
			out = append(out, inv)
		}
	}
	return out
}

// mergeDetail fills a reading from its detail record. Values the detail
// record does not carry are kept.
func mergeDetail(inv *model.InverterReading, detail *model.InverterReading) {
	if detail == nil {
		return
	}
	if detail.Name != "" {
		inv.Name = detail.Name
	}
	if detail.Status != model.StatusUnknown {
		inv.Status = detail.Status
	}
	if detail.Power != nil {
		inv.Power = detail.Power
	}
	if len(detail.Voltages) > 0 {
		inv.Voltages = detail.Voltages
	}
	if len(detail.Currents) > 0 {
		inv.Currents = detail.Currents
	}
	if detail.Temperature != nil {
		inv.Temperature = detail.Temperature
	}
}
