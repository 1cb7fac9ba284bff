package unstructured

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"pdfchat/src/core/rag"
	"pdfchat/src/log"
)

const DefaultURL = "http://localhost:8000"

// Service extracts PDF text through an Unstructured API server. Unlike the local
// extractor it handles scanned documents when the server has OCR enabled.
type Service struct {
	baseURL    string
	httpClient *http.Client
	logger     logr.Logger
}

type Element struct {
	Type      string   `json:"type"`
	Text      string   `json:"text"`
	ElementID string   `json:"element_id"`
	Metadata  Metadata `json:"metadata"`
}

type Metadata struct {
	Filename   string `json:"filename,omitempty"`
	Filetype   string `json:"filetype,omitempty"`
	PageNumber int    `json:"page_number,omitempty"`
}

func NewService(baseURL string, httpClient *http.Client) *Service {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Service{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     log.WithName("unstructured"),
	}
}

// Extract posts the file and joins the returned elements into one document per page.
func (s *Service) Extract(ctx context.Context, name string, r io.ReaderAt, size int64) ([]rag.Document, error) {
	elements, err := s.partition(ctx, filepath.Base(name), io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, err
	}

	var docs []rag.Document
	byPage := make(map[int]int)
	for _, el := range elements {
		text := strings.TrimSpace(el.Text)
		if text == "" {
			continue
		}

		page := el.Metadata.PageNumber
		if page == 0 {
			page = 1
		}
		i, ok := byPage[page]
		if !ok {
			i = len(docs)
			byPage[page] = i
			docs = append(docs, rag.Document{Metadata: map[string]string{
				rag.MetaSource: name,
				rag.MetaPage:   strconv.Itoa(page),
			}})
		} else {
			docs[i].Content += "\n\n"
		}
		docs[i].Content += text
	}

	return docs, nil
}

func (s *Service) partition(ctx context.Context, filename string, content io.Reader) ([]Element, error) {
	var requestBody bytes.Buffer
	multipartWriter := multipart.NewWriter(&requestBody)

	fileWriter, err := multipartWriter.CreateFormFile("files", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err = io.Copy(fileWriter, content); err != nil {
		return nil, fmt.Errorf("failed to write file content: %w", err)
	}

	for field, value := range map[string]string{
		"strategy":      "auto",
		"output_format": "application/json",
	} {
		if err := multipartWriter.WriteField(field, value); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", field, err)
		}
	}
	multipartWriter.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/general/v0/general", &requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", multipartWriter.FormDataContentType())

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		s.logger.Error(fmt.Errorf("status %s", resp.Status), "conversion failed", "file", filename, "response", string(body))
		return nil, fmt.Errorf("conversion service error: %s", resp.Status)
	}

	var elements []Element
	if err := json.NewDecoder(resp.Body).Decode(&elements); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return elements, nil
}
