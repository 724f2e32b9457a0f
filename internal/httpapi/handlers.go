package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roach88/selfcheckout/internal/classify"
	"github.com/roach88/selfcheckout/internal/engine"
	"github.com/roach88/selfcheckout/internal/model"
)

// headerReplayed marks a frame response served from the idempotency record.
const headerReplayed = "X-Frame-Replayed"

type createSessionRequest struct {
	DeviceID string `json:"device_id"`
}

type sessionResponse struct {
	SessionID string      `json:"session_id"`
	State     model.State `json:"state"`
	CreatedAt string      `json:"created_at"`
}

// frameResponse is the stored frame result plus the session's current total.
type frameResponse struct {
	model.FrameResult
	CurrentTotal int64 `json:"current_total"`
}

type confirmResponse struct {
	SessionID string           `json:"session_id"`
	InvoiceID string           `json:"invoice_id"`
	Items     []model.CartLine `json:"items"`
	Total     int64            `json:"total"`
	State     model.State      `json:"state"`
}

type payResponse struct {
	SessionID  string      `json:"session_id"`
	InvoiceID  string      `json:"invoice_id"`
	PaidAt     string      `json:"paid_at"`
	AmountPaid int64       `json:"amount_paid"`
	State      model.State `json:"state"`
}

type cancelResponse struct {
	SessionID string      `json:"session_id"`
	State     model.State `json:"state"`
	ClosedAt  string      `json:"closed_at"`
}

func (s *Server) healthz(c *gin.Context) {
	if s.ready != nil {
		if err := s.ready(c.Request.Context()); err != nil {
			writeJSONError(c, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// POST /sessions
func (s *Server) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSONError(c, http.StatusBadRequest, string(engine.ErrCodeInvalidArgument), "invalid JSON body: "+err.Error())
		return
	}

	sess, err := s.engine.Create(c.Request.Context(), req.DeviceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionResponse{
		SessionID: sess.ID,
		State:     sess.State,
		CreatedAt: model.FormatTime(sess.CreatedAt),
	})
}

// GET /sessions/:id
func (s *Server) getSession(c *gin.Context) {
	sess, err := s.engine.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// POST /sessions/:id/frames
func (s *Server) ingestFrame(c *gin.Context) {
	if !s.limitBody(c) {
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		s.badUpload(c, err)
		return
	}
	img, err := s.readUpload(fh)
	if err != nil {
		s.badUpload(c, err)
		return
	}

	res, err := s.engine.Ingest(c.Request.Context(), engine.FrameInput{
		SessionID: c.Param("id"),
		FrameID:   c.PostForm("frame_id"),
		DeviceID:  c.PostForm("device_id"),
		Image:     img,
		ClientTS:  c.PostForm("ts"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if res.Replayed {
		c.Header(headerReplayed, "true")
	}
	c.JSON(http.StatusOK, frameResponse{FrameResult: res.Result, CurrentTotal: res.CurrentTotal})
}

// GET /sessions/:id/cart
func (s *Server) getCart(c *gin.Context) {
	cart, err := s.engine.Cart(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cart)
}

// POST /sessions/:id/confirm
func (s *Server) confirm(c *gin.Context) {
	out, err := s.engine.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, confirmResponse{
		SessionID: out.Invoice.SessionID,
		InvoiceID: out.Invoice.ID,
		Items:     out.Cart.Items,
		Total:     out.Cart.Total,
		State:     out.State,
	})
}

// POST /sessions/:id/pay
func (s *Server) pay(c *gin.Context) {
	id := c.Param("id")
	out, err := s.engine.Pay(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, payResponse{
		SessionID:  id,
		InvoiceID:  out.InvoiceID,
		PaidAt:     model.FormatTime(out.PaidAt),
		AmountPaid: out.AmountPaid,
		State:      out.State,
	})
}

// POST /sessions/:id/cancel
func (s *Server) cancel(c *gin.Context) {
	sess, err := s.engine.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	resp := cancelResponse{SessionID: sess.ID, State: sess.State}
	if sess.ClosedAt != nil {
		resp.ClosedAt = model.FormatTime(*sess.ClosedAt)
	}
	c.JSON(http.StatusOK, resp)
}

// POST /scan
func (s *Server) scan(c *gin.Context) {
	if !s.limitBody(c) {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		s.badUpload(c, err)
		return
	}
	img, err := s.readUpload(fh)
	if err != nil {
		s.badUpload(c, err)
		return
	}

	res, err := s.engine.Scan(c.Request.Context(), img)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// POST /scan3
func (s *Server) scan3(c *gin.Context) {
	if !s.limitBody(c) {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		s.badUpload(c, err)
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		writeJSONError(c, http.StatusBadRequest, string(engine.ErrCodeInvalidArgument), "files is required")
		return
	}
	if len(files) > classify.MaxVoteImages {
		files = files[:classify.MaxVoteImages]
	}

	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		img, err := s.readUpload(fh)
		if err != nil {
			s.badUpload(c, err)
			return
		}
		images = append(images, img)
	}

	res, err := s.engine.Vote(c.Request.Context(), images)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// limitBody caps the request body. It reports false when the request was
// already rejected.
func (s *Server) limitBody(c *gin.Context) bool {
	if c.Request.ContentLength > s.maxUpload {
		writeJSONError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			fmt.Sprintf("request body exceeds %d bytes", s.maxUpload))
		return false
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	return true
}

func (s *Server) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (s *Server) badUpload(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSONError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE",
			fmt.Sprintf("request body exceeds %d bytes", s.maxUpload))
		return
	}
	writeJSONError(c, http.StatusBadRequest, string(engine.ErrCodeInvalidArgument), err.Error())
}
