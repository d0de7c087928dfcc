package utils

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/h2non/filetype"
)

// downloadTimeout bounds the retrieval of remote resources.
const downloadTimeout = 2 * time.Minute

// Download retrieves the content of the given url.
func Download(uri string) ([]byte, error) {
	client := &http.Client{Timeout: downloadTimeout}

	res, err := client.Get(uri)
	if err != nil {
		return nil, fmt.Errorf("unable to download file from URI %s: %w", uri, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unable to download file from URI %s, status %v", uri, res.Status)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response body: %w", err)
	}
	return data, nil
}

// IsValidUrl tests a string to determine if it is a well-structured url or not.
func IsValidUrl(uri string) bool {
	if _, err := url.ParseRequestURI(uri); err != nil {
		return false
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}

	return true
}

// DetectContentType detects the MIME type of a file by reading its header.
// Files not recognized by their magic numbers fall back to the net/http sniffing algorithm.
func DetectContentType(fname string) (string, error) {
	file, err := os.Open(fname)
	if err != nil {
		return "", err
	}
	defer file.Close()

	// Only the first 512 bytes are used to sniff the content type.
	buffer := make([]byte, 512)
	n, err := io.ReadFull(file, buffer)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	buffer = buffer[:n]

	if kind, err := filetype.Match(buffer); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value, nil
	}

	return http.DetectContentType(buffer), nil
}
