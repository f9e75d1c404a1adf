package clients

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type SFTPConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	RemoteDir string
}

// SFTPPublisher uploads mirror files to a remote directory. Each upload
// goes to a temporary name first and is renamed into place, so readers
// never see a partially written file.
type SFTPPublisher struct {
	config SFTPConfig
}

func NewSFTPPublisher(config SFTPConfig) *SFTPPublisher {
	if config.Port <= 0 {
		config.Port = 22
	}
	if config.RemoteDir == "" {
		config.RemoteDir = "/"
	}
	return &SFTPPublisher{config: config}
}

func (p *SFTPPublisher) Publish(ctx context.Context, localPath string) error {
	if p.config.Host == "" || p.config.User == "" {
		return fmt.Errorf("sftp: missing SFTP_HOST / SFTP_USER")
	}

	sshClient, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer sshClient.Close()

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("sftp: new client: %w", err)
	}
	defer client.Close()

	if err := client.MkdirAll(p.config.RemoteDir); err != nil {
		return fmt.Errorf("sftp: mkdir %s: %w", p.config.RemoteDir, err)
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("sftp: open local file: %w", err)
	}
	defer src.Close()

	remotePath := path.Join(p.config.RemoteDir, filepath.Base(localPath))
	tmpPath := remotePath + ".tmp"

	dst, err := client.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("sftp: create remote file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("sftp: upload copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("sftp: close remote file: %w", err)
	}

	if err := client.PosixRename(tmpPath, remotePath); err != nil {
		return fmt.Errorf("sftp: rename %s: %w", tmpPath, err)
	}

	log.Printf("SFTP publisher: uploaded %s to %s:%s", localPath, p.config.Host, remotePath)
	return nil
}

func (p *SFTPPublisher) dial(ctx context.Context) (*ssh.Client, error) {
	sshCfg := &ssh.ClientConfig{
		User:            p.config.User,
		Auth:            []ssh.AuthMethod{ssh.Password(p.config.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         20 * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", p.config.Host, p.config.Port)

	type dialRes struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialRes{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("sftp: dial canceled: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("sftp: dial error: %w", r.err)
		}
		return r.client, nil
	}
}
