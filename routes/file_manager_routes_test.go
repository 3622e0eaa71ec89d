package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"filemanager/config"
	"filemanager/models"
	"filemanager/services"
	"filemanager/storage"
	"filemanager/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const testSecret = "0123456789abcdef0123"

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryProvider struct {
	mu        sync.Mutex
	actors    map[string]*models.Actor
	companies map[string]string
}

func (p *memoryProvider) LoadActor(ctx context.Context, employeeID string) (*models.Actor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	actor, ok := p.actors[employeeID]
	if !ok {
		return nil, services.ErrActorNotFound
	}
	return actor, nil
}

func (p *memoryProvider) CompanyName(ctx context.Context, companyID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.companies[companyID]
	if !ok {
		return "", errors.New("company not found")
	}
	return name, nil
}

func (p *memoryProvider) grant(id string, actor *models.Actor) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actors[id] = actor
}

type testServer struct {
	router   *gin.Engine
	fs       afero.Fs
	provider *memoryProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/public/VSP", 0o755))
	require.NoError(t, fs.MkdirAll("/public/OtherCo", 0o755))

	cfg := &config.Config{
		AllowedOrigins: []string{"https://admin.example.com"},
		JWT:            config.JWTConfig{Secret: testSecret, Issuer: "filemanager", Expiration: time.Hour},
		Storage:        config.StorageConfig{Type: "local", RootPath: "public"},
		Limits: config.LimitsConfig{
			MaxPathLength:  1024,
			TreeMaxDepth:   32,
			TreeMaxNodes:   1000,
			MaxUploadBytes: 1 << 20,
			RequestTimeout: time.Minute,
			ArchiveTimeout: time.Minute,
		},
	}

	provider := &memoryProvider{
		actors:    map[string]*models.Actor{},
		companies: map[string]string{"c-vsp": "VSP", "c-other": "OtherCo"},
	}
	audit, err := services.OpenInMemoryAuditSink()
	require.NoError(t, err)
	t.Cleanup(func() { audit.Close() })

	container, err := NewServiceContainer(cfg, storage.NewLocalBackendFs(fs, "/srv/files"), provider, audit)
	require.NoError(t, err)

	return &testServer{router: SetupRouter(container), fs: fs, provider: provider}
}

// employee registers an actor and returns a bearer token for it.
func (s *testServer) employee(t *testing.T, level int, companyID string, perms ...models.Permission) (string, string) {
	t.Helper()
	id := primitive.NewObjectID().Hex()
	s.provider.grant(id, models.NewActor(id, level, companyID, perms...))

	token, err := utils.GenerateEmployeeToken(id, id+"@example.com", "filemanager", testSecret, time.Hour)
	require.NoError(t, err)
	return id, token
}

func (s *testServer) do(t *testing.T, method, target, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestFileManager_RequiresEmployeeToken(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/filemanager/files", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodGet, "/filemanager/files", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	adminToken := jwt.NewWithClaims(jwt.SigningMethodHS256, &utils.Claims{
		EmployeeID: primitive.NewObjectID().Hex(),
		Guard:      "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "filemanager",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := adminToken.SignedString([]byte(testSecret))
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/filemanager/files", signed, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// valid token, employee deactivated since
	token, err := utils.GenerateEmployeeToken(primitive.NewObjectID().Hex(), "", "filemanager", testSecret, time.Hour)
	require.NoError(t, err)
	w = s.do(t, http.MethodGet, "/filemanager/files", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFileManager_CreateFolderScenario(t *testing.T) {
	s := newTestServer(t)
	_, token := s.employee(t, 2, "c-vsp", models.PermViewFileExplorer, models.PermCreateFolders)

	w := s.do(t, http.MethodPost, "/filemanager/folders/create", token, gin.H{"folder_name": "Contracts", "path": "public/VSP"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "public/VSP/Contracts", decode(t, w)["path"])

	w = s.do(t, http.MethodGet, "/filemanager/files?path=public/VSP", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, []interface{}{"Contracts"}, body["directories"])
	assert.Equal(t, []interface{}{}, body["files"])
	assert.Equal(t, "public/VSP", body["path"])

	w = s.do(t, http.MethodPost, "/filemanager/folders/create", token, gin.H{"folder_name": "Contracts", "path": "public/VSP"})
	assert.Equal(t, http.StatusConflict, w.Code)

	outOfScope := s.do(t, http.MethodPost, "/filemanager/folders/create", token, gin.H{"folder_name": "Contracts", "path": "public/OtherCo"})
	assert.Equal(t, http.StatusForbidden, outOfScope.Code)
	exists, _ := afero.Exists(s.fs, "/public/OtherCo/Contracts")
	assert.False(t, exists)

	// same response as a plain permission denial
	forbidden := s.do(t, http.MethodDelete, "/filemanager/folders/delete", token, gin.H{"folder_name": "Contracts", "path": "public/VSP"})
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.JSONEq(t, forbidden.Body.String(), outOfScope.Body.String())
}

func TestFileManager_RevokedPermissionAppliesOnNextRequest(t *testing.T) {
	s := newTestServer(t)
	id, token := s.employee(t, 2, "c-vsp", models.PermViewFileExplorer, models.PermCreateFolders)

	w := s.do(t, http.MethodPost, "/filemanager/folders/create", token, gin.H{"folder_name": "A", "path": "public/VSP"})
	require.Equal(t, http.StatusCreated, w.Code)

	s.provider.grant(id, models.NewActor(id, 2, "c-vsp", models.PermViewFileExplorer))

	w = s.do(t, http.MethodPost, "/filemanager/folders/create", token, gin.H{"folder_name": "B", "path": "public/VSP"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFileManager_ErrorStatuses(t *testing.T) {
	s := newTestServer(t)
	_, token := s.employee(t, 2, "c-vsp", models.PermViewFileExplorer, models.PermDelete, models.PermRename)

	w := s.do(t, http.MethodGet, "/filemanager/files?path=public/VSP/../OtherCo", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/filemanager/files?path=public%2FVSP%2F%252e%252e%2FOtherCo", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodDelete, "/filemanager/files/delete", token, gin.H{"filename": "ghost.txt", "path": "public/VSP"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/filemanager/files/delete", token, gin.H{"path": "public/VSP"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = s.do(t, http.MethodPost, "/filemanager/files/rename-file", token, gin.H{"old_name": "a", "new_name": "b", "path": "public/VSP", "type": "symlink"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	orphanID, orphan := s.employee(t, 2, "", models.PermViewFileExplorer)
	require.NotEmpty(t, orphanID)
	w = s.do(t, http.MethodGet, "/filemanager/files", orphan, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestFileManager_UploadDownloadAndView(t *testing.T) {
	s := newTestServer(t)
	_, token := s.employee(t, 2, "c-vsp", models.PermViewFileExplorer, models.PermUploadFilesAndFolders, models.PermDownload)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("path", "public/VSP"))
	part, err := mw.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("meeting notes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/filemanager/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "public/VSP/notes.txt", decode(t, w)["path"])

	w = s.do(t, http.MethodGet, "/filemanager/files/download?path=public/VSP&filename=notes.txt", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "meeting notes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	w = s.do(t, http.MethodGet, "/filemanager/files/view?path=public/VSP&filename=notes.txt", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "inline")

	w = s.do(t, http.MethodGet, "/filemanager/folders/download?path=public&folder_name=OtherCo", token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.NoError(t, s.fs.MkdirAll("/public/VSP/Docs", 0o755))
	w = s.do(t, http.MethodGet, "/filemanager/folders/download?path=public/VSP&folder_name=Docs", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, "PK", w.Body.String()[:2])
}

func TestFileManager_TreeAndBatchCopy(t *testing.T) {
	s := newTestServer(t)
	_, token := s.employee(t, 2, "c-vsp", models.PermViewFileExplorer, models.PermCopyFiles)

	require.NoError(t, s.fs.MkdirAll("/public/VSP/Archive", 0o755))
	require.NoError(t, afero.WriteFile(s.fs, "/public/VSP/a.txt", []byte("a"), 0o644))

	w := s.do(t, http.MethodGet, "/filemanager/files-tree", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tree []models.WireNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	require.Len(t, tree, 1)
	assert.Equal(t, "public/VSP", tree[0].Path)
	require.Len(t, tree[0].Children, 2)
	assert.Equal(t, "Archive", tree[0].Children[0].Name, "folders first")

	w = s.do(t, http.MethodPost, "/filemanager/files/copy-files", token, gin.H{
		"filenames":   []string{"a.txt", "missing.txt"},
		"source_path": "public/VSP",
		"target_path": "public/VSP/Archive",
	})
	assert.Equal(t, http.StatusMultiStatus, w.Code)
	results := decode(t, w)["results"].([]interface{})
	assert.Len(t, results, 2)

	exists, _ := afero.Exists(s.fs, "/public/VSP/Archive/a.txt")
	assert.True(t, exists)
}

func TestHealthAndCORS(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://admin.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/filemanager/files", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
