package roadseg

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	units "github.com/docker/go-units"
	getter "github.com/hashicorp/go-getter"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// PretrainedURL serves the zipped VGG16 SavedModel used as the FCN encoder.
const PretrainedURL = "https://s3-us-west-1.amazonaws.com/udacity-selfdrivingcar/vgg.zip"

const (
	vggDirName     = "vgg"
	vggArchiveName = "vgg.zip"
)

// PretrainedFiles are the files, relative to <dataDir>/vgg, that make up a complete model.
var PretrainedFiles = []string{
	filepath.Join("variables", "variables.data-00000-of-00001"),
	filepath.Join("variables", "variables.index"),
	"saved_model.pb",
}

// ProgressFunc receives the number of bytes downloaded so far and the
// expected total, which is -1 when the server does not send a length.
type ProgressFunc func(downloaded, total int64)

// FetchOptions configures MaybeDownloadPretrained.
type FetchOptions struct {
	// URL of the zip archive (default: PretrainedURL).
	URL      string
	Client   *http.Client
	Progress ProgressFunc
	Logger   *zap.SugaredLogger
}

func (o *FetchOptions) withDefaults() FetchOptions {
	var out FetchOptions
	if o != nil {
		out = *o
	}
	if out.URL == "" {
		out.URL = PretrainedURL
	}
	if out.Client == nil {
		out.Client = http.DefaultClient
	}
	out.Logger = orNop(out.Logger)
	return out
}

// PretrainedDir returns <dataDir>/vgg.
func PretrainedDir(dataDir string) string {
	return filepath.Join(dataDir, vggDirName)
}

// MissingPretrainedFiles returns the full paths of the expected model files that are not regular files on disk.
func MissingPretrainedFiles(dataDir string) []string {
	var missing []string
	for _, name := range PretrainedFiles {
		path := filepath.Join(PretrainedDir(dataDir), name)
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			missing = append(missing, path)
		}
	}
	return missing
}

// MaybeDownloadPretrained makes sure <dataDir>/vgg holds the pretrained model.
// When every expected file is present it returns false without touching the
// network or the disk. Otherwise the vgg directory is recreated from scratch,
// the archive is downloaded into it, extracted into dataDir and deleted.
func MaybeDownloadPretrained(ctx context.Context, dataDir string, opts *FetchOptions) (bool, error) {
	o := opts.withDefaults()

	missing := MissingPretrainedFiles(dataDir)
	if len(missing) == 0 {
		o.Logger.Debugw("pretrained model present", "dir", PretrainedDir(dataDir))
		return false, nil
	}
	o.Logger.Infow("pretrained model incomplete", "missing", missing)

	vggPath := PretrainedDir(dataDir)
	if err := os.RemoveAll(vggPath); err != nil {
		return false, errors.Wrapf(err, "failed to clean %s", vggPath)
	}
	if err := os.MkdirAll(vggPath, 0o755); err != nil {
		return false, errors.Wrapf(err, "failed to create %s", vggPath)
	}

	archive := filepath.Join(vggPath, vggArchiveName)
	o.Logger.Infow("downloading pretrained model", "url", o.URL)
	n, err := downloadFile(ctx, o.Client, o.URL, archive, o.Progress)
	if err != nil {
		return true, errors.Wrapf(err, "download of %s failed", o.URL)
	}

	o.Logger.Infow("extracting model", "archive", archive, "size", units.HumanSize(float64(n)))
	zipper := &getter.ZipDecompressor{}
	if err := zipper.Decompress(dataDir, archive, true, 0); err != nil {
		return true, errors.Wrapf(err, "failed to extract %s", archive)
	}

	if err := os.Remove(archive); err != nil {
		return true, errors.Wrapf(err, "failed to remove %s", archive)
	}
	return true, nil
}

// downloadFile streams srcURL into targetFile through a temporary file and returns the byte count.
func downloadFile(ctx context.Context, client *http.Client, srcURL, targetFile string, progress ProgressFunc) (n int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srcURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, errors.Errorf("HTTP error %v", resp.Status)
	}

	tempFile := targetFile + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return 0, err
	}

	body := &progressReader{r: resp.Body, total: resp.ContentLength, fn: progress}
	n, err = io.Copy(file, body)
	err = multierr.Append(err, file.Close())
	if err != nil {
		return n, multierr.Append(err, os.Remove(tempFile))
	}
	return n, os.Rename(tempFile, targetFile)
}

type progressReader struct {
	r     io.Reader
	read  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	if n > 0 && p.fn != nil {
		p.fn(p.read, p.total)
	}
	return n, err
}
