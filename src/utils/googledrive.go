package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sync"

	"github.com/enzococca/mekan-admin/src/logging"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const driveFolderMime = "application/vnd.google-apps.folder"

var (
	driveHost     = regexp.MustCompile(`drive\.google\.com`)
	driveIDFormat = []*regexp.Regexp{
		regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`/folders/([a-zA-Z0-9_-]+)`),
	}
)

// ErrDriveNotConfigured is returned when neither credentials path nor JSON is set.
var ErrDriveNotConfigured = errors.New("google drive credentials are not configured")

// ErrDriveFileNotFound is returned when Drive answers 404 for a file id.
var ErrDriveFileNotFound = errors.New("drive file not found")

// DriveFile is the metadata of a downloaded Drive file.
type DriveFile struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// DriveClient reads media files from Google Drive with a service account.
// The underlying service is created on first use.
type DriveClient struct {
	credentialsPath string
	credentialsJSON string

	once    sync.Once
	service *drive.Service
	initErr error
}

// NewDriveClient returns nil when no credentials are configured.
func NewDriveClient(credentialsPath, credentialsJSON string) *DriveClient {
	if credentialsPath == "" && credentialsJSON == "" {
		return nil
	}
	return &DriveClient{credentialsPath: credentialsPath, credentialsJSON: credentialsJSON}
}

func (c *DriveClient) init(ctx context.Context) error {
	c.once.Do(func() {
		raw := []byte(c.credentialsJSON)
		if c.credentialsPath != "" {
			b, err := os.ReadFile(c.credentialsPath)
			if err != nil {
				c.initErr = fmt.Errorf("read drive credentials: %w", err)
				return
			}
			raw = b
		}
		if len(raw) == 0 {
			c.initErr = ErrDriveNotConfigured
			return
		}

		creds, err := google.CredentialsFromJSON(ctx, raw, drive.DriveReadonlyScope)
		if err != nil {
			c.initErr = fmt.Errorf("load drive credentials: %w", err)
			return
		}
		c.service, err = drive.NewService(ctx, option.WithCredentials(creds))
		if err != nil {
			c.initErr = fmt.Errorf("create drive service: %w", err)
			return
		}
		logging.Info().Msg("google drive client ready")
	})
	return c.initErr
}

// Download streams a Drive file. The caller closes the body.
func (c *DriveClient) Download(ctx context.Context, fileID string) (io.ReadCloser, *DriveFile, error) {
	if err := c.init(context.Background()); err != nil {
		return nil, nil, err
	}

	f, err := c.service.Files.Get(fileID).Fields("id", "name", "mimeType", "size").Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, nil, fmt.Errorf("drive file %s: %w", fileID, ErrDriveFileNotFound)
		}
		return nil, nil, fmt.Errorf("drive file %s: %w", fileID, err)
	}
	if f.MimeType == driveFolderMime {
		return nil, nil, fmt.Errorf("drive id %s is a folder", fileID)
	}

	resp, err := c.service.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		return nil, nil, fmt.Errorf("download drive file %s: %w", fileID, err)
	}

	logging.Debug().Str("file_id", fileID).Str("name", f.Name).Int64("size", f.Size).Msg("drive download")
	return resp.Body, &DriveFile{ID: f.Id, Name: f.Name, MimeType: f.MimeType, Size: f.Size}, nil
}

// ExtractFileIDFromURL pulls the file id out of the usual Drive URL shapes.
func ExtractFileIDFromURL(url string) (string, error) {
	for _, re := range driveIDFormat {
		if m := re.FindStringSubmatch(url); len(m) > 1 {
			return m[1], nil
		}
	}
	return "", fmt.Errorf("no drive file id in %q", url)
}

func IsGoogleDriveURL(url string) bool {
	return driveHost.MatchString(url)
}
