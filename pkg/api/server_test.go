package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jakechorley/helpboard/pkg/clients/geocodeclient"
	"github.com/jakechorley/helpboard/pkg/clients/storageclient"
	"github.com/jakechorley/helpboard/pkg/core/geo"
	"github.com/jakechorley/helpboard/pkg/core/model"
	"github.com/jakechorley/helpboard/pkg/core/services"
	"github.com/jakechorley/helpboard/pkg/core/session"
	"github.com/jakechorley/helpboard/pkg/identity"
	"github.com/jakechorley/helpboard/pkg/sqlite"
)

// fakePutter implements storageclient.Putter for testing
type fakePutter struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakePutter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(params.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (f *fakePutter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type testEnv struct {
	t      *testing.T
	url    string
	store  *sqlite.DB
	putter *fakePutter
}

type envOption func(*Deps)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.Open(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	require.NoError(t, store.RunMigrations(ctx))
	t.Cleanup(store.Close)

	logger := zap.NewNop()
	auth, err := identity.NewService(store, identity.NewMemoryRevoker(), identity.Options{
		Secret:     []byte("test-secret-0123456789"),
		TTL:        time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, logger)
	require.NoError(t, err)

	putter := &fakePutter{objects: make(map[string][]byte)}
	deps := Deps{
		Store:    store,
		Auth:     auth,
		Sessions: session.NewManager(services.ProfileBootstrapper(store, logger), logger),
		Images:   services.NewImages(storageclient.NewWithPutter(putter, "images", "https://cdn.test"), 1<<20),
		Logger:   logger,
		Options: Options{
			DevBypass:     true,
			DefaultCenter: geo.DefaultCenter,
			MaxImageBytes: 1 << 20,
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}

	srv := httptest.NewServer(NewServer(deps).Handler())
	t.Cleanup(srv.Close)

	return &testEnv{t: t, url: srv.URL, store: store, putter: putter}
}

// addProfile creates a profile before the user's first request so the
// session loads with that role
func (e *testEnv) addProfile(id string, role model.Role) {
	e.t.Helper()
	now := time.Now().UTC()
	require.NoError(e.t, e.store.InsertProfile(context.Background(), &model.Profile{
		ID: id, Email: id + "@example.com", Name: id, Role: role, CreatedAt: now, UpdatedAt: now,
	}))
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type request struct {
	method      string
	path        string
	user        string
	bearer      string
	body        io.Reader
	contentType string
}

func (e *testEnv) do(req request) (int, envelope) {
	e.t.Helper()

	httpReq, err := http.NewRequest(req.method, e.url+req.path, req.body)
	require.NoError(e.t, err)
	if req.user != "" {
		httpReq.Header.Set("X-User-Sub", req.user)
		httpReq.Header.Set("X-User-Email", req.user+"@example.com")
	}
	if req.bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	require.NoError(e.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(e.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (e *testEnv) getAs(user, path string) (int, envelope) {
	return e.do(request{method: http.MethodGet, path: path, user: user})
}

func (e *testEnv) postJSON(user, path string, body interface{}) (int, envelope) {
	b, err := json.Marshal(body)
	require.NoError(e.t, err)
	return e.do(request{method: http.MethodPost, path: path, user: user, body: bytes.NewReader(b), contentType: "application/json"})
}

type formFile struct {
	field, name, contentType string
	content                  []byte
}

func multipartBody(t *testing.T, fields map[string]string, file *formFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.name))
		h.Set("Content-Type", file.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(file.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.url + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		bearer string
	}{
		{name: "no credentials"},
		{name: "garbage token", bearer: "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(request{method: http.MethodGet, path: "/api/tasks", bearer: tt.bearer})
			assert.Equal(t, http.StatusUnauthorized, status)
			assert.False(t, body.Success)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.getAs("alice", "/api/nope")

	assert.Equal(t, http.StatusNotFound, status)
}

func TestSignUpSignInSignOut(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Options.DevBypass = false })

	status, body := env.postJSON("", "/api/auth/signup", map[string]string{
		"email": "Dana@Example.com", "password": "correct horse", "name": "Dana",
	})
	require.Equal(t, http.StatusCreated, status, body.Message)
	var created session.Session
	decodeData(t, body, &created)
	assert.Equal(t, session.StateReady, created.State)
	assert.Equal(t, "Dana", created.Profile.Name)
	assert.Equal(t, model.RoleVolunteer, created.Profile.Role)

	status, _ = env.postJSON("", "/api/auth/signup", map[string]string{"email": "dana@example.com", "password": "another pass"})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.postJSON("", "/api/auth/signin", map[string]string{"email": "dana@example.com", "password": "wrong password"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = env.postJSON("", "/api/auth/signin", map[string]string{"email": "dana@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, status)
	var signedIn signInResponse
	decodeData(t, body, &signedIn)
	require.NotEmpty(t, signedIn.AccessToken)

	status, body = env.do(request{method: http.MethodGet, path: "/api/me", bearer: signedIn.AccessToken})
	require.Equal(t, http.StatusOK, status)
	var me session.Session
	decodeData(t, body, &me)
	require.NotNil(t, me.Permissions)
	assert.True(t, me.Permissions.CanClaimTasks)
	assert.False(t, me.Permissions.CanAccessAdmin)

	// dev headers are ignored when the bypass is off
	status, _ = env.getAs("dana", "/api/me")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(request{method: http.MethodPost, path: "/api/auth/signout", bearer: signedIn.AccessToken})
	require.Equal(t, http.StatusOK, status)

	status, _ = env.do(request{method: http.MethodGet, path: "/api/me", bearer: signedIn.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSignUpValidation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body map[string]string
	}{
		{name: "short password", body: map[string]string{"email": "a@example.com", "password": "short"}},
		{name: "bad email", body: map[string]string{"email": "not-an-email", "password": "long enough"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _ := env.postJSON("", "/api/auth/signup", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}

	status, _ := env.do(request{method: http.MethodPost, path: "/api/auth/signup", body: strings.NewReader("{"), contentType: "application/json"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile("coord", model.RoleCoordinator)
	require.NoError(t, env.store.InsertBadge(context.Background(), &model.Badge{
		ID: "first", Name: "First Steps", Icon: "👣", CriteriaType: model.CriteriaTaskCount, CriteriaValue: 1,
	}))

	// alice posts a task with a reference image
	body, contentType := multipartBody(t, map[string]string{
		"title":      "Carry groceries",
		"urgency":    "high",
		"skill_tags": "physical, elderly-care",
		"latitude":   "30.6280",
		"longitude":  "-96.3344",
	}, &formFile{field: "image", name: "bags.png", contentType: "image/png", content: []byte("png-bytes")})
	status, resp := env.do(request{method: http.MethodPost, path: "/api/tasks", user: "alice", body: body, contentType: contentType})
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var task model.Task
	decodeData(t, resp, &task)
	assert.Equal(t, model.StatusOpen, task.Status)
	assert.Equal(t, []string{"physical", "elderly-care"}, task.SkillTags)
	assert.True(t, strings.HasPrefix(task.ImageURL, "https://cdn.test/alice/"), task.ImageURL)
	assert.Equal(t, 1, env.putter.count())

	// bob claims it; alice is too late
	status, resp = env.postJSON("bob", "/api/tasks/"+task.ID+"/claim", nil)
	require.Equal(t, http.StatusOK, status, resp.Message)

	status, resp = env.postJSON("alice", "/api/tasks/"+task.ID+"/claim", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "task already claimed by someone else", resp.Message)

	// only bob can complete, and only with proof
	proof := &formFile{field: "proof", name: "done.jpg", contentType: "image/jpeg", content: []byte("jpeg-bytes")}
	body, contentType = multipartBody(t, nil, proof)
	status, _ = env.do(request{method: http.MethodPost, path: "/api/tasks/" + task.ID + "/complete", user: "alice", body: body, contentType: contentType})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.postJSON("bob", "/api/tasks/"+task.ID+"/complete", nil)
	assert.Equal(t, http.StatusBadRequest, status)

	body, contentType = multipartBody(t, nil, proof)
	status, resp = env.do(request{method: http.MethodPost, path: "/api/tasks/" + task.ID + "/complete", user: "bob", body: body, contentType: contentType})
	require.Equal(t, http.StatusOK, status, resp.Message)
	decodeData(t, resp, &task)
	assert.Equal(t, model.StatusCompleted, task.Status)
	assert.Equal(t, "bob", task.VolunteerID)

	// review
	status, _ = env.getAs("alice", "/api/admin/queue")
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = env.getAs("coord", "/api/admin/queue")
	require.Equal(t, http.StatusOK, status)
	var queue []model.Task
	decodeData(t, resp, &queue)
	require.Len(t, queue, 1)
	assert.Equal(t, task.ID, queue[0].ID)

	status, _ = env.postJSON("alice", "/api/tasks/"+task.ID+"/verify", map[string]string{"status": "verified"})
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = env.postJSON("coord", "/api/tasks/"+task.ID+"/verify", map[string]string{"status": "verified"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	decodeData(t, resp, &task)
	assert.Equal(t, model.StatusVerified, task.Status)

	status, resp = env.postJSON("coord", "/api/tasks/"+task.ID+"/verify", map[string]string{"status": "flagged"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, services.ErrNotAwaitingReview.Error(), resp.Message)

	// bob earned the badge
	status, resp = env.getAs("bob", "/api/badges?filter=earned")
	require.Equal(t, http.StatusOK, status)
	var earned []services.Progress
	decodeData(t, resp, &earned)
	require.Len(t, earned, 1)
	assert.Equal(t, "First Steps", earned[0].Badge.Name)
	assert.NotNil(t, earned[0].EarnedAt)

	status, resp = env.getAs("bob", "/api/tasks/mine")
	require.Equal(t, http.StatusOK, status)
	var mine []model.Task
	decodeData(t, resp, &mine)
	assert.Len(t, mine, 1)
}

func TestCreateTask_RolePermissions(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile("scout", model.RoleScout)

	wellness := map[string]interface{}{"title": "Check on Mrs. Thompson", "wellness_check": true}

	status, resp := env.postJSON("vol", "/api/tasks", wellness)
	assert.Equal(t, http.StatusForbidden, status)
	assert.False(t, resp.Success)

	status, resp = env.postJSON("scout", "/api/tasks", wellness)
	require.Equal(t, http.StatusCreated, status, resp.Message)
	var task model.Task
	decodeData(t, resp, &task)
	assert.True(t, task.WellnessCheck)
}

func TestCreateTask_Validation(t *testing.T) {
	env := newTestEnv(t)

	status, resp := env.postJSON("vol", "/api/tasks", map[string]interface{}{"title": "", "latitude": 40.0})
	require.Equal(t, http.StatusBadRequest, status)
	var fields map[string]string
	decodeData(t, resp, &fields)
	assert.Contains(t, fields, "title")

	body, contentType := multipartBody(t, map[string]string{"title": "x"},
		&formFile{field: "image", name: "notes.txt", contentType: "text/plain", content: []byte("hi")})
	status, _ = env.do(request{method: http.MethodPost, path: "/api/tasks", user: "vol", body: body, contentType: contentType})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Zero(t, env.putter.count())
}

func TestSubmitTask(t *testing.T) {
	env := newTestEnv(t)

	body, contentType := multipartBody(t, map[string]string{"title": "Cleared the storm drain"},
		&formFile{field: "image", name: "drain.webp", contentType: "image/webp", content: []byte("webp")})
	status, resp := env.do(request{method: http.MethodPost, path: "/api/tasks/submit", user: "vol", body: body, contentType: contentType})

	require.Equal(t, http.StatusCreated, status, resp.Message)
	var task model.Task
	decodeData(t, resp, &task)
	assert.Equal(t, model.StatusPending, task.Status)
	assert.Equal(t, "vol", task.VolunteerID)
}

func TestRoles(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile("coord", model.RoleCoordinator)

	status, _ := env.postJSON("vol", "/api/me/role", map[string]string{"role": "coordinator"})
	assert.Equal(t, http.StatusForbidden, status)

	status, resp := env.postJSON("vol", "/api/me/role", map[string]string{"role": "medic"})
	require.Equal(t, http.StatusOK, status, resp.Message)
	var sess session.Session
	decodeData(t, resp, &sess)
	assert.Equal(t, model.RoleMedic, sess.Profile.Role)
	assert.True(t, sess.Permissions.CanLogMedicalTasks)

	// the cached session reflects the change
	status, resp = env.getAs("vol", "/api/me")
	require.Equal(t, http.StatusOK, status)
	decodeData(t, resp, &sess)
	assert.Equal(t, model.RoleMedic, sess.Profile.Role)

	b, err := json.Marshal(map[string]string{"role": "coordinator"})
	require.NoError(t, err)
	status, _ = env.do(request{method: http.MethodPut, path: "/api/users/coord/role", user: "vol", body: bytes.NewReader(b), contentType: "application/json"})
	assert.Equal(t, http.StatusForbidden, status)

	status, resp = env.do(request{method: http.MethodPut, path: "/api/users/vol/role", user: "coord", body: bytes.NewReader(b), contentType: "application/json"})
	require.Equal(t, http.StatusOK, status, resp.Message)

	status, _ = env.getAs("vol", "/api/admin/queue")
	assert.Equal(t, http.StatusOK, status)
}

func TestRoleChangedOutsideServerTakesEffect(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.getAs("u2", "/api/admin/queue")
	require.Equal(t, http.StatusForbidden, status)

	// same write the assignRole command makes
	require.NoError(t, env.store.UpdateProfileRole(context.Background(), "u2", model.RoleCoordinator))

	status, _ = env.getAs("u2", "/api/admin/queue")
	assert.Equal(t, http.StatusOK, status)

	status, resp := env.getAs("u2", "/api/me")
	require.Equal(t, http.StatusOK, status)
	var sess session.Session
	decodeData(t, resp, &sess)
	assert.Equal(t, model.RoleCoordinator, sess.Profile.Role)
}

func TestMapEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct {
		title    string
		lat, lng float64
	}{
		{"College Station", 30.6280, -96.3344},
		{"Bryan", 30.6744, -96.3698},
		{"Houston", 29.7604, -95.3698},
	} {
		status, resp := env.postJSON("vol", "/api/tasks", map[string]interface{}{
			"title": tc.title, "latitude": tc.lat, "longitude": tc.lng,
		})
		require.Equal(t, http.StatusCreated, status, resp.Message)
	}

	status, resp := env.getAs("vol", "/api/map/tasks?radius=10")
	require.Equal(t, http.StatusOK, status)
	var tasks []model.Task
	decodeData(t, resp, &tasks)
	titles := []string{}
	for _, task := range tasks {
		titles = append(titles, task.Title)
	}
	assert.ElementsMatch(t, []string{"College Station", "Bryan"}, titles)

	status, resp = env.getAs("vol", "/api/tasks?lat=29.7604&lng=-95.3698&radius=5")
	require.Equal(t, http.StatusOK, status)
	decodeData(t, resp, &tasks)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Houston", tasks[0].Title)

	// A reference point without a radius filters nothing out
	status, resp = env.getAs("vol", "/api/map/tasks?lat=29.7604&lng=-95.3698")
	require.Equal(t, http.StatusOK, status)
	decodeData(t, resp, &tasks)
	assert.Len(t, tasks, 3)

	status, _ = env.getAs("vol", "/api/map/tasks?lat=29.7604&lng=-95.3698&radius=-1")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.getAs("vol", "/api/map/tasks?lat=29.7")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.getAs("vol", "/api/map/tasks?status=lost")
	assert.Equal(t, http.StatusBadRequest, status)

	status, resp = env.getAs("vol", "/api/map/heatmap")
	require.Equal(t, http.StatusOK, status)
	var points []services.HeatPoint
	decodeData(t, resp, &points)
	assert.Empty(t, points)

	status, _ = env.getAs("vol", "/api/map/token")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestMapToken(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Options.MapboxToken = "pk.test" })

	status, resp := env.getAs("vol", "/api/map/token")

	require.Equal(t, http.StatusOK, status)
	var token mapTokenResponse
	decodeData(t, resp, &token)
	assert.Equal(t, "pk.test", token.Token)
	assert.Equal(t, geo.DefaultCenter, token.DefaultCenter)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.addProfile("comms", model.RoleCommunicator)

	status, _ := env.getAs("vol", "/api/stats")
	assert.Equal(t, http.StatusForbidden, status)

	status, resp := env.getAs("comms", "/api/stats")
	require.Equal(t, http.StatusOK, status)
	var stats services.Stats
	decodeData(t, resp, &stats)
	assert.Zero(t, stats.Total)
}

func TestProfileSetupFailure(t *testing.T) {
	var mu sync.Mutex
	failing := true
	env := newTestEnv(t, func(d *Deps) {
		bootstrap := services.ProfileBootstrapper(d.Store, zap.NewNop())
		d.Sessions = session.NewManager(func(ctx context.Context, id session.Identity) (*model.Profile, error) {
			mu.Lock()
			defer mu.Unlock()
			if failing {
				return nil, fmt.Errorf("%w: %w", services.ErrProfileSetup, errors.New("database is read-only"))
			}
			return bootstrap(ctx, id)
		}, zap.NewNop())
	})

	status, resp := env.getAs("vol", "/api/tasks")
	require.Equal(t, http.StatusServiceUnavailable, status)
	var sess session.Session
	decodeData(t, resp, &sess)
	assert.Equal(t, session.StateError, sess.State)

	status, _ = env.getAs("vol", "/api/me")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	mu.Lock()
	failing = false
	mu.Unlock()

	status, resp = env.postJSON("vol", "/api/me/retry", nil)
	require.Equal(t, http.StatusOK, status, resp.Message)
	decodeData(t, resp, &sess)
	assert.Equal(t, session.StateReady, sess.State)

	status, _ = env.getAs("vol", "/api/tasks")
	assert.Equal(t, http.StatusOK, status)
}

// fakeGeocoder implements Geocoder for testing
type fakeGeocoder struct {
	places []geocodeclient.Place
}

func (f fakeGeocoder) Forward(ctx context.Context, query string) ([]geocodeclient.Place, error) {
	if strings.TrimSpace(query) == "" {
		return nil, geocodeclient.ErrEmptyQuery
	}
	return f.places, nil
}

func TestGeocode(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t)

		status, _ := env.getAs("vol", "/api/geocode?q=bryan")

		assert.Equal(t, http.StatusServiceUnavailable, status)
	})

	t.Run("configured", func(t *testing.T) {
		places := []geocodeclient.Place{{ID: "place.1", Name: "Bryan, Texas", Center: geo.Point{Lat: 30.6744, Lng: -96.3698}}}
		env := newTestEnv(t, func(d *Deps) { d.Geocoder = fakeGeocoder{places: places} })

		status, resp := env.getAs("vol", "/api/geocode?q=bryan")
		require.Equal(t, http.StatusOK, status)
		var got []geocodeclient.Place
		decodeData(t, resp, &got)
		assert.Equal(t, places, got)

		status, _ = env.getAs("vol", "/api/geocode?q=")
		assert.Equal(t, http.StatusBadRequest, status)
	})
}
