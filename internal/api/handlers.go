package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/secavis-relay/internal/intake"
	"github.com/JakeFAU/secavis-relay/internal/logging"
	"github.com/JakeFAU/secavis-relay/internal/notice"
	"github.com/JakeFAU/secavis-relay/internal/pipeline"
)

// ledgerWarningHeader flags a result whose pair could not be recorded.
const ledgerWarningHeader = "X-Ledger-Warning"

type identificationRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Company  string `json:"company"`
}

// problem is the error body shape, {code, message, explanation}.
type problem struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Explanation string `json:"explanation"`
}

func (s *Server) lookupNotice(w http.ResponseWriter, r *http.Request) {
	s.fetch(w, r, nil)
}

func (s *Server) searchAndForward(w http.ResponseWriter, r *http.Request) {
	token, user := intakeSession(r)
	if token == "" || user == "" {
		writeProblem(w, problem{
			Code:        http.StatusForbidden,
			Message:     "authentication required",
			Explanation: "this request needs an intake session token",
		})
		return
	}
	s.fetch(w, r, &notice.ForwardTarget{
		Token:       token,
		FormID:      s.cfg.Intake.FormID,
		RecipientID: user,
	})
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request, target *notice.ForwardTarget) {
	q := r.URL.Query()
	req := pipeline.Request{
		FiscalID:  firstNonEmpty(q.Get("fiscalId"), q.Get("numeroFiscal")),
		NoticeRef: firstNonEmpty(q.Get("noticeRef"), q.Get("referenceAvis")),
		Forward:   target,
	}
	out, err := s.pipeline.FetchAndRegister(r.Context(), req)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	if out.RecordErr != nil {
		w.Header().Set(ledgerWarningHeader, "record failed")
	}
	writeJSON(w, http.StatusOK, out.Result)
}

func (s *Server) identify(w http.ResponseWriter, r *http.Request) {
	req, err := decodeIdentification(r)
	if err != nil || req.Login == "" || req.Password == "" {
		writeError(w, http.StatusForbidden, "login and password are required")
		return
	}
	company := firstNonEmpty(req.Company, s.cfg.Intake.Company)
	sess, err := s.auth.Authenticate(r.Context(), company, req.Login, req.Password)
	if err != nil {
		s.logger.Info("identification refused", zap.String("login", req.Login), zap.Error(err))
		writeError(w, http.StatusForbidden, "identification failed")
		return
	}
	s.logger.Info("operator identified", zap.String("login", req.Login), logging.Secret("token", sess.Token))
	http.SetCookie(w, &http.Cookie{Name: TokenCookie, Value: sess.Token, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	http.SetCookie(w, &http.Cookie{Name: UserCookie, Value: sess.UserID, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode})
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) purge(w http.ResponseWriter, r *http.Request) {
	if err := s.pipeline.Purge(r.Context()); err != nil {
		s.writePipelineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	p := problemFor(err)
	if p.Code >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Stringer("kind", notice.KindOf(err)), zap.Error(err))
	}
	writeProblem(w, p)
}

func problemFor(err error) problem {
	switch notice.KindOf(err) {
	case notice.KindValidation:
		return problem{
			Code:        http.StatusBadRequest,
			Message:     "bad request",
			Explanation: "fiscalId and noticeRef must both be provided",
		}
	case notice.KindDuplicate:
		return problem{
			Code:        http.StatusBadRequest,
			Message:     "duplicate request",
			Explanation: "this fiscal reference pair has already been processed",
		}
	case notice.KindNotFound:
		return problem{
			Code:        http.StatusNotFound,
			Message:     "notice not found",
			Explanation: "the identifiers are incorrect or do not match a notice",
		}
	case notice.KindForward:
		return problem{
			Code:        http.StatusInternalServerError,
			Message:     "forward failed",
			Explanation: "the notice was retrieved but could not be delivered to the intake service",
		}
	default:
		return problem{
			Code:        http.StatusInternalServerError,
			Message:     "internal error",
			Explanation: "the notice could not be retrieved",
		}
	}
}

func decodeIdentification(r *http.Request) (identificationRequest, error) {
	var req identificationRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, errors.New("invalid JSON")
		}
		return req, nil
	}
	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Login = firstNonEmpty(r.PostForm.Get("login"), r.PostForm.Get("identifiant"))
	req.Password = firstNonEmpty(r.PostForm.Get("password"), r.PostForm.Get("motDePasse"))
	req.Company = r.PostForm.Get("company")
	return req, nil
}

func intakeSession(r *http.Request) (token, user string) {
	token = r.Header.Get(TokenHeader)
	user = r.Header.Get(UserHeader)
	if c, err := r.Cookie(TokenCookie); err == nil && token == "" {
		token = c.Value
	}
	if c, err := r.Cookie(UserCookie); err == nil && user == "" {
		user = c.Value
	}
	return token, user
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Authenticator = (*intake.Client)(nil)
