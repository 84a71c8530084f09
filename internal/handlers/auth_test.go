package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/mpetrenko/authgate/internal/blacklist"
	"github.com/mpetrenko/authgate/internal/logger"
	"github.com/mpetrenko/authgate/internal/repository/postgres"
	"github.com/mpetrenko/authgate/internal/service/auth"
	"github.com/mpetrenko/authgate/internal/service/auth/tokenmanager"
	"github.com/mpetrenko/authgate/internal/testutil"
)

// Full router over a db transaction and an in-process redis
func newTestRouter(t *testing.T, tx pgx.Tx) http.Handler {
	t.Helper()

	storage := postgres.NewStorage(tx)
	rs := testutil.StartRedis(t)

	token, err := tokenmanager.New(tokenmanager.Config{SecretKey: "test-secret"}, storage.Refresh())
	require.NoError(t, err)

	service, err := auth.NewService(auth.Config{}, token, storage.User(), blacklist.NewStore(rs.Client, ""))
	require.NoError(t, err)

	return NewRouter(service, logger.NewNoOpLogger())
}

// Do JSON request against the router, return status and decoded body
func doJSON(t *testing.T, router http.Handler, method string, path string, body string, headers map[string]string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	r := httptest.NewRequest(method, path, reader)
	for key, value := range headers {
		r.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	decoded := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), "response must be json. Body: %s", w.Body.String())
	}
	return w.Code, decoded
}

func registerAlice(t *testing.T, router http.Handler) {
	t.Helper()

	code, _ := doJSON(t, router, http.MethodPost, "/api/register",
		`{"email":"alice@example.com","password":"password","firstName":"Alice","lastName":"Liddell"}`, nil)
	require.Equal(t, http.StatusCreated, code)
}

func loginAlice(t *testing.T, router http.Handler) (access string, refresh string) {
	t.Helper()

	code, body := doJSON(t, router, http.MethodPost, "/api/login",
		`{"email":"alice@example.com","password":"password"}`, nil)
	require.Equal(t, http.StatusOK, code)
	access, _ = body["accessToken"].(string)
	refresh, _ = body["refreshToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	return access, refresh
}

func Test_Ping(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
		router := newTestRouter(t, tx)

		code, body := doJSON(t, router, http.MethodGet, "/api/ping", "", nil)

		require.Equal(t, http.StatusOK, code)
		require.Equal(t, "pong", body["message"])
	})
}

func Test_Register(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("register ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)

			code, body := doJSON(t, router, http.MethodPost, "/api/register",
				`{"email":"alice@example.com","password":"password","firstName":"Alice","lastName":"Liddell"}`, nil)

			require.Equal(t, http.StatusCreated, code)
			require.Equal(t, "User registered successfully", body["message"])

			user, ok := body["user"].(map[string]any)
			require.True(t, ok, "response must carry the user summary")
			require.Equal(t, "alice@example.com", user["email"])
			require.Equal(t, "Alice", user["firstName"])
			require.Equal(t, "Liddell", user["lastName"])
			require.NotEmpty(t, user["id"])
			require.NotContains(t, user, "password", "no password material in the response")
		})
	})

	t.Run("duplicate email conflicts", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)
			registerAlice(t, router)

			code, body := doJSON(t, router, http.MethodPost, "/api/register",
				`{"email":"alice@example.com","password":"another","firstName":"Another","lastName":"Alice"}`, nil)

			require.Equal(t, http.StatusConflict, code)
			require.Equal(t, "User already exists", body["message"])
		})
	})

	t.Run("validation failures", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)

			tests := []struct {
				name  string
				body  string
				field string
			}{
				{"bad email", `{"email":"not-an-email","password":"password","firstName":"A","lastName":"B"}`, "email"},
				{"short password", `{"email":"a@example.com","password":"12345","firstName":"A","lastName":"B"}`, "password"},
				{"missing first name", `{"email":"a@example.com","password":"password","lastName":"B"}`, "firstName"},
				{"missing last name", `{"email":"a@example.com","password":"password","firstName":"A"}`, "lastName"},
			}

			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					code, body := doJSON(t, router, http.MethodPost, "/api/register", tt.body, nil)

					require.Equal(t, http.StatusBadRequest, code)
					require.Equal(t, "validation_failed", body["error"])
					fields, ok := body["fields"].(map[string]any)
					require.True(t, ok)
					require.Contains(t, fields, tt.field)
				})
			}
		})
	})

	t.Run("broken json", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)

			code, body := doJSON(t, router, http.MethodPost, "/api/register", `{"email":`, nil)

			require.Equal(t, http.StatusBadRequest, code)
			require.Equal(t, "decoding_failed", body["error"])
		})
	})
}

func Test_Login(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("login ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)
			registerAlice(t, router)

			code, body := doJSON(t, router, http.MethodPost, "/api/login",
				`{"email":"alice@example.com","password":"password"}`, nil)

			require.Equal(t, http.StatusOK, code)
			require.NotEmpty(t, body["accessToken"])
			require.NotEmpty(t, body["refreshToken"])
			require.EqualValues(t, 3600, body["expiresIn"])
			require.EqualValues(t, 7776000, body["refreshExpiresIn"])
		})
	})

	t.Run("wrong password", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)
			registerAlice(t, router)

			code, body := doJSON(t, router, http.MethodPost, "/api/login",
				`{"email":"alice@example.com","password":"wrong"}`, nil)

			require.Equal(t, http.StatusUnauthorized, code)
			require.Equal(t, "Invalid credentials", body["message"])
		})
	})

	t.Run("unknown email", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)

			code, body := doJSON(t, router, http.MethodPost, "/api/login",
				`{"email":"ghost@example.com","password":"password"}`, nil)

			require.Equal(t, http.StatusUnauthorized, code)
			require.Equal(t, "Invalid credentials", body["message"])
		})
	})
}

func Test_TokenRefresh(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("refresh rotates", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)
			registerAlice(t, router)
			_, refresh := loginAlice(t, router)

			code, body := doJSON(t, router, http.MethodPost, "/api/refresh-token",
				`{"refreshToken":"`+refresh+`"}`, nil)

			require.Equal(t, http.StatusOK, code)
			require.NotEmpty(t, body["accessToken"])
			require.NotEqual(t, refresh, body["refreshToken"], "a fresh refresh token must be issued")
			require.EqualValues(t, 3600, body["expiresIn"])
			require.EqualValues(t, 7776000, body["refreshExpiresIn"])

			// The consumed token is rejected from now on
			code, body = doJSON(t, router, http.MethodPost, "/api/refresh-token",
				`{"refreshToken":"`+refresh+`"}`, nil)
			require.Equal(t, http.StatusUnauthorized, code)
			require.Equal(t, "Invalid or expired refresh token", body["message"])
		})
	})

	t.Run("unknown token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)

			code, body := doJSON(t, router, http.MethodPost, "/api/refresh-token",
				`{"refreshToken":"never-issued"}`, nil)

			require.Equal(t, http.StatusUnauthorized, code)
			require.Equal(t, "Invalid or expired refresh token", body["message"])
		})
	})

	t.Run("missing token field", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)

			code, body := doJSON(t, router, http.MethodPost, "/api/refresh-token", `{}`, nil)

			require.Equal(t, http.StatusBadRequest, code)
			require.Equal(t, "validation_failed", body["error"])
		})
	})
}

func Test_UserMe(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("profile returned", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)
			registerAlice(t, router)
			access, _ := loginAlice(t, router)

			code, body := doJSON(t, router, http.MethodGet, "/api/users/me", "",
				map[string]string{"Authorization": "Bearer " + access})

			require.Equal(t, http.StatusOK, code)
			require.Equal(t, "alice@example.com", body["email"])
			require.Equal(t, "Alice", body["firstName"])
			require.Equal(t, "Liddell", body["lastName"])
			require.NotEmpty(t, body["id"])
		})
	})

	t.Run("no token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)

			code, body := doJSON(t, router, http.MethodGet, "/api/users/me", "", nil)

			require.Equal(t, http.StatusUnauthorized, code)
			require.Equal(t, "Unauthorized", body["message"])
		})
	})

	t.Run("garbage token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)

			code, _ := doJSON(t, router, http.MethodGet, "/api/users/me", "",
				map[string]string{"Authorization": "Bearer not-a-jwt"})

			require.Equal(t, http.StatusUnauthorized, code)
		})
	})
}

func Test_Logout(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("full session lifecycle", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)
			registerAlice(t, router)
			access, refresh := loginAlice(t, router)
			authHeader := map[string]string{"Authorization": "Bearer " + access}

			code, _ := doJSON(t, router, http.MethodGet, "/api/users/me", "", authHeader)
			require.Equal(t, http.StatusOK, code, "session must work before logout")

			code, body := doJSON(t, router, http.MethodPost, "/api/logout",
				`{"refreshToken":"`+refresh+`"}`, authHeader)
			require.Equal(t, http.StatusOK, code)
			require.Equal(t, "Logged out successfully", body["message"])

			code, _ = doJSON(t, router, http.MethodGet, "/api/users/me", "", authHeader)
			require.Equal(t, http.StatusUnauthorized, code,
				"blacklisted access token must be rejected even before its expiry")

			code, _ = doJSON(t, router, http.MethodPost, "/api/refresh-token",
				`{"refreshToken":"`+refresh+`"}`, nil)
			require.Equal(t, http.StatusUnauthorized, code,
				"revoked refresh token must not mint new pairs")
		})
	})

	t.Run("logout without body", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)
			registerAlice(t, router)
			access, refresh := loginAlice(t, router)
			authHeader := map[string]string{"Authorization": "Bearer " + access}

			code, body := doJSON(t, router, http.MethodPost, "/api/logout", "", authHeader)
			require.Equal(t, http.StatusOK, code)
			require.Equal(t, "Logged out successfully", body["message"])

			// Only the access token is denied, the refresh token still rotates
			code, _ = doJSON(t, router, http.MethodPost, "/api/refresh-token",
				`{"refreshToken":"`+refresh+`"}`, nil)
			require.Equal(t, http.StatusOK, code)
		})
	})

	t.Run("logout without token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)

			code, body := doJSON(t, router, http.MethodPost, "/api/logout", "", nil)

			require.Equal(t, http.StatusBadRequest, code,
				"missing token on logout is a client error, not an authentication failure")
			require.Equal(t, "No token provided", body["message"])
		})
	})

	t.Run("logout with malformed token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)

			code, body := doJSON(t, router, http.MethodPost, "/api/logout", "",
				map[string]string{"Authorization": "Bearer not.a-jwt"})

			require.Equal(t, http.StatusBadRequest, code)
			require.Equal(t, "Invalid token format", body["message"])
		})
	})

	t.Run("logout is idempotent for the refresh token", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			router := newTestRouter(t, tx)
			registerAlice(t, router)
			firstAccess, refresh := loginAlice(t, router)
			secondAccess, _ := loginAlice(t, router)

			code, _ := doJSON(t, router, http.MethodPost, "/api/logout",
				`{"refreshToken":"`+refresh+`"}`, map[string]string{"Authorization": "Bearer " + firstAccess})
			require.Equal(t, http.StatusOK, code)

			// Second logout names an already revoked refresh token, still ok
			code, _ = doJSON(t, router, http.MethodPost, "/api/logout",
				`{"refreshToken":"`+refresh+`"}`, map[string]string{"Authorization": "Bearer " + secondAccess})
			require.Equal(t, http.StatusOK, code)
		})
	})
}
