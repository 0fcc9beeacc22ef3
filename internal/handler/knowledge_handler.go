package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/chatstack/chatstack/internal/model"
	"github.com/chatstack/chatstack/internal/pkg/response"
	"github.com/chatstack/chatstack/internal/service"
)

const maxUploadBytes = 20 << 20

type KnowledgeHandler struct {
	ingest *service.IngestService
}

func NewKnowledgeHandler(ingest *service.IngestService) *KnowledgeHandler {
	return &KnowledgeHandler{ingest: ingest}
}

type ingestURLRequest struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Crawl    bool   `json:"crawl"`
	MaxPages int    `json:"max_pages"`
}

type ingestResponse struct {
	KnowledgeBase *model.KnowledgeBase   `json:"knowledge_base"`
	Results       []service.IngestResult `json:"results"`
}

func (h *KnowledgeHandler) IngestURL(c *gin.Context) {
	var req ingestURLRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.URL == "" {
		badRequest(c, "url is required")
		return
	}
	kb, results, err := h.ingest.CreateFromURL(c.Request.Context(), c.Param("id"), req.Name, req.URL, req.Crawl, req.MaxPages)
	if err != nil {
		// the per-item report still matters when the first source failed
		if len(results) > 0 {
			response.Success(c, ingestResponse{Results: results})
			return
		}
		handleError(c, err)
		return
	}
	response.Success(c, ingestResponse{KnowledgeBase: kb, Results: results})
}

func (h *KnowledgeHandler) List(c *gin.Context) {
	kbs, err := h.ingest.ListKnowledgeBases(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, kbs)
}

func (h *KnowledgeHandler) Delete(c *gin.Context) {
	if err := h.ingest.DeleteKnowledgeBase(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}

func (h *KnowledgeHandler) IngestFiles(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "multipart form is required")
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		badRequest(c, "at least one file is required")
		return
	}
	uploads := make([]service.UploadFile, 0, len(files))
	for _, file := range files {
		if file.Size > maxUploadBytes {
			badRequest(c, "file too large: "+file.Filename)
			return
		}
		opened, err := file.Open()
		if err != nil {
			badRequest(c, "failed to open file: "+file.Filename)
			return
		}
		data, err := io.ReadAll(io.LimitReader(opened, maxUploadBytes))
		opened.Close()
		if err != nil {
			badRequest(c, "failed to read file: "+file.Filename)
			return
		}
		uploads = append(uploads, service.UploadFile{Name: file.Filename, Data: data})
	}
	kb, results, err := h.ingest.CreateFromFiles(c.Request.Context(), c.Param("id"), c.PostForm("name"), uploads)
	if err != nil {
		if len(results) > 0 {
			response.Success(c, ingestResponse{Results: results})
			return
		}
		handleError(c, err)
		return
	}
	response.Success(c, ingestResponse{KnowledgeBase: kb, Results: results})
}
