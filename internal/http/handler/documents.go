package handler

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"meddocs/internal/model"
	"meddocs/internal/service"
)

// MessageResponse is a plain acknowledgement body.
type MessageResponse struct {
	Message string `json:"message"`
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	Message  string          `json:"message" example:"File uploaded successfully"`
	Document *model.Document `json:"document"`
}

var dispositionEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\r", "", "\n", "")

// parseID reads the :id route parameter as a positive integer.
func parseID(c *fiber.Ctx) (int64, bool) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func contentDisposition(filename string) string {
	return `inline; filename="` + dispositionEscaper.Replace(filename) + `"`
}

// UploadDocument godoc
//
//	@Summary		Upload a PDF
//	@Description	Stores a PDF (max 10 MiB) and records its metadata.
//	@Tags			documents
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"PDF file"
//	@Param			title	formData	string	false	"Display title, defaults to the file name"
//	@Success		201		{object}	UploadResponse
//	@Failure		400		{object}	errorPayload
//	@Failure		500		{object}	errorPayload
//	@Router			/api/documents/upload [post]
func UploadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeServiceError(c, service.ErrFileRequired)
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		doc, err := svc.Upload(c.UserContext(), service.UploadInput{
			Content:     f,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(fiber.HeaderContentType),
			Size:        fh.Size,
			Title:       c.FormValue("title"),
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(UploadResponse{
			Message:  "File uploaded successfully",
			Document: doc,
		})
	}
}

// ListDocuments godoc
//
//	@Summary	List documents
//	@Tags		documents
//	@Produce	json
//	@Success	200	{array}		model.Document
//	@Failure	500	{object}	errorPayload
//	@Router		/api/documents [get]
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		docs, err := svc.List(c.UserContext())
		if err != nil {
			return writeServiceError(c, err)
		}
		if docs == nil {
			docs = []model.Document{}
		}
		return c.JSON(docs)
	}
}

// GetDocument godoc
//
//	@Summary	Download a PDF
//	@Description	Streams the stored PDF inline.
//	@Tags		documents
//	@Produce	application/pdf
//	@Param		id	path		int	true	"Document ID"
//	@Success	200	{file}		binary
//	@Failure	400	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Failure	500	{object}	errorPayload
//	@Router		/api/documents/{id} [get]
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}

		doc, content, err := svc.Stream(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}

		c.Set(fiber.HeaderContentType, service.PDFMediaType)
		c.Set(fiber.HeaderContentDisposition, contentDisposition(doc.Filename))
		// fasthttp closes content once the body has been written.
		return c.SendStream(content, int(content.Size))
	}
}

// DeleteDocument godoc
//
//	@Summary	Delete a document
//	@Tags		documents
//	@Produce	json
//	@Param		id	path		int	true	"Document ID"
//	@Success	200	{object}	MessageResponse
//	@Failure	400	{object}	errorPayload
//	@Failure	404	{object}	errorPayload
//	@Failure	500	{object}	errorPayload
//	@Router		/api/documents/{id} [delete]
func DeleteDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, ok := parseID(c)
		if !ok {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := svc.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(MessageResponse{Message: "Document deleted successfully"})
	}
}
