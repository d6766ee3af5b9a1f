package export

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"google.golang.org/api/option"

	"swiftconvert/internal/config"
)

// Destinations accepted by NewSaver.
const (
	DestLocal = "local"
	DestS3    = "s3"
	DestGCS   = "gcs"
	DestSFTP  = "sftp"
)

// NewSaver builds the saver for dest. An empty dest uses cfg.Destination.
// dir overrides the local directory when set.
func NewSaver(ctx context.Context, cfg config.ExportConfig, dest, dir string, logger *zap.Logger) (Saver, error) {
	if dest == "" {
		dest = cfg.Destination
	}
	if dir == "" {
		dir = cfg.Dir
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch strings.ToLower(dest) {
	case DestLocal, "":
		return &LocalSaver{Dir: dir}, nil
	case DestS3:
		return NewS3Saver(ctx, cfg.S3)
	case DestGCS:
		return NewGCSSaver(cfg.GCS)
	case DestSFTP:
		return NewSFTPSaver(cfg.SFTP, logger)
	default:
		return nil, fmt.Errorf("unknown export destination: %s", dest)
	}
}

// LocalSaver writes into a directory on disk.
type LocalSaver struct {
	Dir string
}

func (l *LocalSaver) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(l.Dir, filepath.Base(name))

	tmp, err := os.CreateTemp(l.Dir, ".swiftconvert-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// S3Saver uploads objects with the S3 upload manager.
type S3Saver struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Saver uses static keys when configured, otherwise the default AWS
// credential chain.
func NewS3Saver(ctx context.Context, cfg config.S3Config) (*S3Saver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 export: SWIFTCONVERT_S3_BUCKET is not set")
	}

	var client *s3.Client
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		client = s3.New(s3.Options{
			Region:      cfg.Region,
			Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		})
	} else {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Saver{
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

func (s *S3Saver) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	key := objectKey(s.prefix, name)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %s to bucket %s: %w", key, s.bucket, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// GCSSaver writes objects to a Cloud Storage bucket.
type GCSSaver struct {
	bucket          string
	prefix          string
	credentialsFile string
}

func NewGCSSaver(cfg config.GCSConfig) (*GCSSaver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs export: SWIFTCONVERT_GCS_BUCKET is not set")
	}
	return &GCSSaver{bucket: cfg.Bucket, prefix: cfg.Prefix, credentialsFile: cfg.CredentialsFile}, nil
}

func (g *GCSSaver) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	var opts []option.ClientOption
	if g.credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(g.credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	objectName := objectKey(g.prefix, name)
	wc := client.Bucket(g.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(wc, r); err != nil {
		wc.Close()
		return "", fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return "", fmt.Errorf("Writer.Close: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", g.bucket, objectName), nil
}

// SFTPSaver copies files to a remote directory over SFTP.
type SFTPSaver struct {
	cfg    config.SFTPConfig
	auth   []ssh.AuthMethod
	hostCB ssh.HostKeyCallback
}

func NewSFTPSaver(cfg config.SFTPConfig, logger *zap.Logger) (*SFTPSaver, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, fmt.Errorf("sftp export: SWIFTCONVERT_SFTP_HOST and SWIFTCONVERT_SFTP_USER are required")
	}
	if cfg.Port == "" {
		cfg.Port = "22"
	}

	var auths []ssh.AuthMethod
	switch {
	case cfg.KeyFile != "":
		keyBytes, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	case cfg.Password != "":
		auths = append(auths, ssh.Password(cfg.Password))
	default:
		return nil, fmt.Errorf("sftp export: set SWIFTCONVERT_SFTP_KEY_FILE or SWIFTCONVERT_SFTP_PASSWORD")
	}

	hostCB := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHosts != "" {
		cb, err := knownhosts.New(cfg.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostCB = cb
	} else {
		logger.Warn("sftp host key is not verified; set SWIFTCONVERT_SFTP_KNOWN_HOSTS", zap.String("host", cfg.Host))
	}

	return &SFTPSaver{cfg: cfg, auth: auths, hostCB: hostCB}, nil
}

func (s *SFTPSaver) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)

	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial tcp %s: %w", addr, err)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            s.auth,
		HostKeyCallback: s.hostCB,
		Timeout:         10 * time.Second,
	})
	if err != nil {
		conn.Close()
		return "", fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return "", fmt.Errorf("create sftp client: %w", err)
	}
	defer client.Close()

	if err := mkdirAllSFTP(client, s.cfg.Dir); err != nil {
		return "", fmt.Errorf("ensure remote dir %s: %w", s.cfg.Dir, err)
	}

	remotePath := path.Join(s.cfg.Dir, path.Base(name))
	f, err := client.Create(remotePath)
	if err != nil {
		return "", fmt.Errorf("create remote file %s: %w", remotePath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		return "", fmt.Errorf("copy to remote file %s: %w", remotePath, err)
	}
	return fmt.Sprintf("sftp://%s%s", addr, path.Clean("/"+remotePath)), nil
}

// mkdirAllSFTP creates each missing segment of dir on the server.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}
	for _, p := range strings.Split(dir, "/") {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
			if err := client.Mkdir(cur); err != nil {
				return fmt.Errorf("mkdir %s: %w", cur, err)
			}
		}
	}
	return nil
}

func objectKey(prefix, name string) string {
	name = path.Base(filepath.ToSlash(name))
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
