package solarlog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/solarlog-integration/internal/pkg/model"
)

const (
	testPassword = "s3cret&more"
	testToken    = "abc123"

	overviewAnswer = `{
		"801": {"170": {"100": "24.09.24 14:10:00", "101": 4200, "102": 4400, "105": 18000, "116": 9800}},
		"740": {"0": "WR 1", "1": "Err", "2": "WR 3"},
		"782": {"0": "2000", "1": "0", "2": "2200"},
		"608": {"0": 0, "2": 1}
	}`
	energyAnswer = `{"854": [["24.09.24", [1500, 0, 1200]]], "878": [["2024", 4100000, 0, 1800000]]}`
)

// fakeDevice is an in-process Solar-Log. Data answers are chosen by the
// query codes in the request body.
type fakeDevice struct {
	t *testing.T

	loginAnswer string
	loginDelay  time.Duration
	sendCookie  bool

	logins  atomic.Int32
	queries atomic.Int32
	// expireNext answers that many data queries with ACCESS DENIED
	expireNext atomic.Int32

	mu         sync.Mutex
	lastBody   string
	lastCookie string
	answers    map[string]string
}

func newFakeDevice(t *testing.T) *fakeDevice {
	return &fakeDevice{
		t:           t,
		loginAnswer: "SUCCESS - Password was correct, you are now logged in",
		sendCookie:  true,
		answers: map[string]string{
			`"776"`: `{"141": {"0": {"119": "Roof"}, "2": {"119": "Garage"}}, "776": {"0": [0, 2000, [400, 398], [2.5, 2.4], 41.5], "2": [1, 0, [0]]}}`,
			`"854"`: energyAnswer,
			`"608"`: overviewAnswer,
			`"740"`: `{"740": {"0": "WR 1", "1": "Err", "2": "WR 3"}}`,
			`"801"`: `{"801": {"170": {"101": 0}}}`,
		},
	}
}

func (d *fakeDevice) answer(key, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.answers[key] = body
}

func (d *fakeDevice) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	assert.NoError(d.t, err)

	switch r.URL.Path {
	case "/login":
		d.logins.Add(1)
		assert.Equal(d.t, "u=user&p=s3cret%26more", string(body))
		if d.loginDelay > 0 {
			select {
			case <-time.After(d.loginDelay):
			case <-r.Context().Done():
				return
			}
		}
		if d.sendCookie {
			http.SetCookie(w, &http.Cookie{Name: cookieName, Value: testToken})
		}
		_, _ = io.WriteString(w, d.loginAnswer)
	case "/getjp":
		d.queries.Add(1)
		d.mu.Lock()
		d.lastBody = string(body)
		d.lastCookie = r.Header.Get("Cookie")
		d.mu.Unlock()

		if d.expireNext.Load() > 0 {
			d.expireNext.Add(-1)
			_, _ = io.WriteString(w, "ACCESS DENIED")
			return
		}
		// order matters: the overview query also carries 740 and 801
		for _, key := range []string{`"776"`, `"854"`, `"608"`, `"740"`, `"801"`} {
			if strings.Contains(string(body), key) {
				d.mu.Lock()
				answer := d.answers[key]
				d.mu.Unlock()
				_, _ = io.WriteString(w, answer)
				return
			}
		}
		http.Error(w, "unknown query", http.StatusBadRequest)
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(t *testing.T, device http.Handler, opts ...func(*Client)) *Client {
	t.Helper()
	srv := httptest.NewServer(device)
	t.Cleanup(srv.Close)

	opts = append([]func(*Client){
		WithPassword(testPassword),
		WithHTTPClient(srv.Client()),
		WithLogger(zaptest.NewLogger(t)),
	}, opts...)
	c, err := New(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestNew_Host(t *testing.T) {
	c, err := New("192.168.1.20")
	require.NoError(t, err)
	assert.Equal(t, "http://192.168.1.20", c.Host())

	c, err = New("https://solarlog.local/")
	require.NoError(t, err)
	assert.Equal(t, "https://solarlog.local", c.Host())

	_, err = New("  ")
	assert.Error(t, err)
}

func TestLogin_ThenEnsureValidIsOneRoundTrip(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device)

	session, err := c.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testToken, session.Token)
	assert.False(t, session.Open)

	again, err := c.sessions.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Same(t, session, again)
	assert.EqualValues(t, 1, device.logins.Load())
}

func TestLogin_Answers(t *testing.T) {
	tests := map[string]struct {
		answer     string
		noCookie   bool
		wantErr    error
		expectOpen bool
	}{
		"wrong password": {answer: "FAILED - Password was wrong", wantErr: ErrAuth},
		"no password":    {answer: "FAILED - User was wrong", noCookie: true, expectOpen: true},
		"unknown answer": {answer: "<html>maintenance</html>", wantErr: ErrUnexpectedResponse},
		"missing cookie": {answer: "SUCCESS - Password was correct", noCookie: true, wantErr: ErrUnexpectedResponse},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			device := newFakeDevice(t)
			device.loginAnswer = tc.answer
			device.sendCookie = !tc.noCookie
			c := newTestClient(t, device)

			session, err := c.Login(context.Background())
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, c.sessions.Current())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectOpen, session.Open)
			assert.Empty(t, session.Token)
		})
	}
}

func TestLogin_CancelledCommitsNothing(t *testing.T) {
	device := newFakeDevice(t)
	device.loginDelay = time.Second
	c := newTestClient(t, device)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Login(ctx)
	require.Error(t, err)
	assert.Nil(t, c.sessions.Current())
}

func TestEnsureValid_ConcurrentCallersShareOneLogin(t *testing.T) {
	device := newFakeDevice(t)
	device.loginDelay = 50 * time.Millisecond
	c := newTestClient(t, device)

	first, err := c.Login(context.Background())
	require.NoError(t, err)
	c.sessions.Expire(first)

	const callers = 16
	sessions := make([]*Session, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := c.sessions.EnsureValid(context.Background())
			assert.NoError(t, err)
			sessions[i] = s
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2, device.logins.Load())
	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
	assert.NotSame(t, first, sessions[0])
}

func TestExpire_StaleSessionIgnored(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device)

	old, err := c.Login(context.Background())
	require.NoError(t, err)
	current, err := c.Login(context.Background())
	require.NoError(t, err)

	c.sessions.Expire(old)
	s, err := c.sessions.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.Same(t, current, s)
	assert.EqualValues(t, 2, device.logins.Load())
}

func TestEnsureValid_SessionTTL(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device, WithSessionTTL(time.Minute))

	now := time.Date(2024, 9, 24, 12, 0, 0, 0, time.UTC)
	c.sessions.now = func() time.Time { return now }

	_, err := c.Login(context.Background())
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	_, err = c.sessions.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, device.logins.Load())

	now = now.Add(time.Minute)
	_, err = c.sessions.EnsureValid(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, device.logins.Load())
}

func TestSnapshot_SendsTokenAndCookie(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device)

	snapshot, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	device.mu.Lock()
	defer device.mu.Unlock()
	assert.True(t, strings.HasPrefix(device.lastBody, "token="+testToken+"; {"), device.lastBody)
	assert.Equal(t, cookieName+"="+testToken, device.lastCookie)

	assert.Equal(t, 4200.0, *snapshot.TotalPower)
	require.Len(t, snapshot.Inverters, 2)
	assert.Equal(t, "WR 1", snapshot.Inverters[0].Name)
	assert.Equal(t, model.StatusOffline, snapshot.Inverters[1].Status)
	assert.Nil(t, snapshot.Energy)
}

func TestSnapshot_OpenDeviceSendsNoToken(t *testing.T) {
	device := newFakeDevice(t)
	device.loginAnswer = "FAILED - User was wrong"
	device.sendCookie = false
	c := newTestClient(t, device)

	_, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	device.mu.Lock()
	defer device.mu.Unlock()
	assert.True(t, strings.HasPrefix(device.lastBody, "{"), device.lastBody)
	assert.Empty(t, device.lastCookie)
}

func TestSnapshot_ReloginOnExpiredSession(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device)

	_, err := c.Login(context.Background())
	require.NoError(t, err)
	device.expireNext.Store(1)

	snapshot, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.Inverters, 2)
	assert.EqualValues(t, 2, device.logins.Load())
	assert.EqualValues(t, 2, device.queries.Load())
}

func TestSnapshot_ExpiredAfterReloginIsAuthError(t *testing.T) {
	device := newFakeDevice(t)
	device.expireNext.Store(2)
	c := newTestClient(t, device)

	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrAuth)
	assert.ErrorIs(t, err, ErrSessionExpired)
	assert.EqualValues(t, 2, device.logins.Load())
}

func TestSnapshot_DeviceBusy(t *testing.T) {
	device := newFakeDevice(t)
	device.answer(`"608"`, `{"QUERY IMPOSSIBLE 000"}`)
	c := newTestClient(t, device)

	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrDeviceBusy)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestSnapshot_Extended(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device, WithExtendedData(true))

	snapshot, err := c.Snapshot(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Inverters, 2)
	roof := snapshot.Inverters[0]
	assert.Equal(t, "Roof", roof.Name)
	assert.Equal(t, model.StatusOK, roof.Status)
	assert.Equal(t, []float64{400, 398}, roof.Voltages)
	assert.Equal(t, 41.5, *roof.Temperature)
	assert.Equal(t, 1500.0, *roof.EnergyToday)

	garage := snapshot.Inverters[1]
	assert.Equal(t, "Garage", garage.Name)
	assert.Equal(t, model.StatusOffline, garage.Status)
	assert.Nil(t, garage.Temperature)
	assert.Equal(t, 1200.0, *garage.EnergyToday)

	require.NotNil(t, snapshot.Energy)
	assert.Equal(t, 1800000.0, *snapshot.Energy.SelfConsumptionYear)
}

func TestSnapshot_ExtendedDecodeFailureIsPartial(t *testing.T) {
	device := newFakeDevice(t)
	device.answer(`"776"`, `{"776": {"0": "garbage"}}`)
	device.answer(`"854"`, `not json`)

	core, logs := observer.New(zapcore.WarnLevel)
	c := newTestClient(t, device, WithExtendedData(true), WithLogger(zap.New(core)))

	snapshot, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Inverters, 2)
	assert.Equal(t, "WR 1", snapshot.Inverters[0].Name)
	assert.Nil(t, snapshot.Inverters[0].EnergyToday)
	assert.Nil(t, snapshot.Energy)
	assert.Equal(t, 2, logs.FilterMessage("skipping inverter detail").Len())
	assert.Equal(t, 1, logs.FilterMessage("skipping energy records").Len())
}

func TestSnapshot_EnabledInverters(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device, WithEnabledInverters(map[string]bool{"2": true}))

	snapshot, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Inverters, 1)
	assert.Equal(t, "2", snapshot.Inverters[0].ID)
}

func TestSnapshot_Timeout(t *testing.T) {
	device := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	c := newTestClient(t, device, WithTimeout(20*time.Millisecond))

	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestSnapshot_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrConnection)
}

func TestSnapshot_StatusError(t *testing.T) {
	device := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c := newTestClient(t, device)

	_, err := c.Snapshot(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Code)
	assert.Equal(t, loginPath, statusErr.Path)
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestPing(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device)
	assert.True(t, c.Ping(context.Background()))
	assert.EqualValues(t, 0, device.logins.Load())

	down := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	assert.False(t, down.Ping(context.Background()))
}

func TestPing_WaitsForRunningPoll(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device)

	c.pollMu.Lock()
	done := make(chan bool, 1)
	go func() { done <- c.Ping(context.Background()) }()

	select {
	case <-done:
		t.Fatal("ping returned while a poll was running")
	case <-time.After(50 * time.Millisecond):
	}
	assert.EqualValues(t, 0, device.queries.Load())

	c.pollMu.Unlock()
	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("ping did not return")
	}
	assert.EqualValues(t, 1, device.queries.Load())
}

func TestSnapshot_OversizedBody(t *testing.T) {
	limit := maxBodySize
	maxBodySize = 64
	t.Cleanup(func() { maxBodySize = limit })

	device := newFakeDevice(t)
	device.answer(`"608"`, `{"801": {"170": {"101": 1}}, "pad": "`+strings.Repeat("x", 128)+`"}`)
	c := newTestClient(t, device)

	_, err := c.Snapshot(context.Background())
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
}

func TestExtendedDataAvailable(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device)
	assert.True(t, c.ExtendedDataAvailable(context.Background()))

	device.answer(`"740"`, `{"QUERY IMPOSSIBLE 000"}`)
	assert.False(t, c.ExtendedDataAvailable(context.Background()))
}

func TestDeviceNames(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device)

	names, err := c.DeviceNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "Roof", 2: "Garage"}, names)
}

func TestRequestInterval(t *testing.T) {
	device := newFakeDevice(t)
	c := newTestClient(t, device, WithRequestInterval(50*time.Millisecond))

	started := time.Now()
	_, err := c.Snapshot(context.Background())
	require.NoError(t, err)
	_, err = c.Snapshot(context.Background())
	require.NoError(t, err)

	// login plus two queries, the first one goes out immediately
	assert.GreaterOrEqual(t, time.Since(started), 100*time.Millisecond)
}
