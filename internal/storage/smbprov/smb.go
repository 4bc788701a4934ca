// dbmanager - multi-database backup and restore service
// Copyright 2026 The dbmanager Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dbvault/dbmanager

// Package smbprov implements the SMB/CIFS storage provider, grounded on
// the original system's smb_storage.py: one session per (server, user,
// domain) reused across calls, paths joined as
// \\server\share\base_path\key, metadata persisted as a
// <key>.metadata.json sidecar (SMB has no native object-metadata
// concept), and deduplication implemented as a server-side file copy
// rather than a pointer object.
package smbprov

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/hirochachacha/go-smb2"

	"github.com/dbvault/dbmanager/internal/storage"
)

// Config configures an SMB storage target.
type Config struct {
	Server     string
	ShareName  string
	Username   string
	Password   string
	Domain     string
	RemotePath string // base path within the share
}

// Provider is the SMB storage.Provider implementation.
type Provider struct {
	cfg Config

	mu      sync.Mutex
	conn    net.Conn
	session *smb2.Session
	share   *smb2.Share
}

// New constructs a Provider. The underlying TCP/session is established
// lazily on first use and reused for every subsequent call, matching
// spec §4.2.2's "one session per (server,user,domain)" requirement.
func New(cfg Config) (*Provider, error) {
	if cfg.Server == "" || cfg.ShareName == "" {
		return nil, fmt.Errorf("smb target requires server and share_name")
	}
	return &Provider{cfg: cfg}, nil
}

func (p *Provider) connect() (*smb2.Share, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.share != nil {
		return p.share, nil
	}

	conn, err := net.Dial("tcp", p.cfg.Server+":445")
	if err != nil {
		return nil, fmt.Errorf("dial smb server %s: %w", p.cfg.Server, err)
	}

	d := &smb2.Dialer{
		Initiator: &smb2.NTLMInitiator{
			User:     p.cfg.Username,
			Password: p.cfg.Password,
			Domain:   p.cfg.Domain,
		},
	}
	session, err := d.Dial(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("smb session to %s: %w", p.cfg.Server, err)
	}

	share, err := session.Mount(p.cfg.ShareName)
	if err != nil {
		session.Logoff()
		conn.Close()
		return nil, fmt.Errorf("mount smb share %s on %s: %w", p.cfg.ShareName, p.cfg.Server, err)
	}

	p.conn, p.session, p.share = conn, session, share
	return share, nil
}

// fullPath joins the share-relative key with the configured base path,
// using SMB's backslash separator, matching _get_full_path.
func (p *Provider) fullPath(key string) string {
	clean := strings.TrimLeft(strings.ReplaceAll(key, "/", "\\"), "\\")
	base := strings.Trim(strings.ReplaceAll(p.cfg.RemotePath, "/", "\\"), "\\")
	if base == "" {
		return clean
	}
	return base + "\\" + clean
}

func metadataKey(key string) string { return key + ".metadata.json" }

func (p *Provider) mkdirAll(share *smb2.Share, filePath string) error {
	dir := path.Dir(strings.ReplaceAll(filePath, "\\", "/"))
	if dir == "." || dir == "/" {
		return nil
	}
	smbDir := strings.ReplaceAll(dir, "/", "\\")
	if _, err := share.Stat(smbDir); err == nil {
		return nil
	}
	return share.MkdirAll(smbDir, 0o755)
}

// Upload implements storage.Provider. When dedupRef is set, it performs
// a server-side copy from the referenced key instead of re-transferring
// the file content, per spec §4.2.2.
func (p *Provider) Upload(ctx context.Context, localPath, key string, metadata map[string]string, dedupRef string) error {
	share, err := p.connect()
	if err != nil {
		return err
	}
	dst := p.fullPath(key)
	if err := p.mkdirAll(share, dst); err != nil {
		return fmt.Errorf("create parent dirs for %s: %w", dst, err)
	}

	if dedupRef != "" {
		if err := p.copyOnShare(share, p.fullPath(dedupRef), dst); err == nil {
			return p.saveMetadata(share, key, metadata)
		}
		// Fall back to a normal upload, matching the original
		// implementation's "deduplication failed, falling back".
	}

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s for smb upload: %w", localPath, err)
	}
	defer src.Close()

	out, err := share.Create(dst)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, src); err != nil {
		return fmt.Errorf("write remote file %s: %w", dst, err)
	}
	return p.saveMetadata(share, key, metadata)
}

func (p *Provider) copyOnShare(share *smb2.Share, srcPath, dstPath string) error {
	if _, err := share.Stat(srcPath); err != nil {
		return fmt.Errorf("dedup ref %s not found: %w", srcPath, err)
	}
	src, err := share.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := share.Create(dstPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

func (p *Provider) saveMetadata(share *smb2.Share, key string, metadata map[string]string) error {
	if len(metadata) == 0 {
		return nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal smb metadata sidecar for %s: %w", key, err)
	}
	f, err := share.Create(p.fullPath(metadataKey(key)))
	if err != nil {
		return fmt.Errorf("create metadata sidecar for %s: %w", key, err)
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// Download implements storage.Provider.
func (p *Provider) Download(ctx context.Context, key, localPath string) error {
	share, err := p.connect()
	if err != nil {
		return err
	}
	src, err := share.Open(p.fullPath(key))
	if err != nil {
		return fmt.Errorf("open remote file %s: %w", key, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(localPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create local file %s: %w", localPath, err)
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}

// Delete implements storage.Provider. Idempotent: a missing key is not
// an error, matching _.exists guard in the original implementation.
func (p *Provider) Delete(ctx context.Context, key string) error {
	share, err := p.connect()
	if err != nil {
		return err
	}
	full := p.fullPath(key)
	if _, statErr := share.Stat(full); statErr == nil {
		if err := share.Remove(full); err != nil {
			return fmt.Errorf("remove %s: %w", full, err)
		}
	}
	metaFull := p.fullPath(metadataKey(key))
	if _, statErr := share.Stat(metaFull); statErr == nil {
		_ = share.Remove(metaFull)
	}
	return nil
}

// List implements storage.Provider; prefix is treated as a directory,
// matching the original implementation's simplification (SMB has no
// native flat-key listing).
func (p *Provider) List(ctx context.Context, prefix string, maxKeys int) ([]storage.ObjectInfo, error) {
	share, err := p.connect()
	if err != nil {
		return nil, err
	}
	dir := p.fullPath(prefix)
	entries, err := share.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list smb dir %s: %w", dir, err)
	}

	var out []storage.ObjectInfo
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".metadata.json") || strings.HasSuffix(name, ".sha256") {
			continue
		}
		out = append(out, storage.ObjectInfo{
			Key:          strings.TrimRight(prefix, "/") + "/" + name,
			Size:         e.Size(),
			LastModified: e.ModTime().Unix(),
		})
		if maxKeys > 0 && len(out) >= maxKeys {
			break
		}
	}
	return out, nil
}

// GetInfo implements storage.Provider.
func (p *Provider) GetInfo(ctx context.Context, key string) (storage.ObjectInfo, bool, error) {
	share, err := p.connect()
	if err != nil {
		return storage.ObjectInfo{}, false, err
	}
	full := p.fullPath(key)
	fi, err := share.Stat(full)
	if err != nil {
		return storage.ObjectInfo{}, false, nil
	}

	meta := map[string]string{}
	if mf, err := share.Open(p.fullPath(metadataKey(key))); err == nil {
		defer mf.Close()
		data, readErr := io.ReadAll(mf)
		if readErr == nil {
			_ = json.Unmarshal(data, &meta)
		}
	}

	return storage.ObjectInfo{
		Key:          key,
		Size:         fi.Size(),
		LastModified: fi.ModTime().Unix(),
		Metadata:     meta,
	}, true, nil
}

// TestConnection implements storage.Provider: lists the share root.
func (p *Provider) TestConnection(ctx context.Context) error {
	share, err := p.connect()
	if err != nil {
		return err
	}
	if _, err := share.ReadDir("."); err != nil {
		return fmt.Errorf("list smb share root: %w", err)
	}
	return nil
}

// Close implements storage.Provider, tearing down the mounted share,
// session, and TCP connection.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.share != nil {
		_ = p.share.Umount()
		p.share = nil
	}
	if p.session != nil {
		_ = p.session.Logoff()
		p.session = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

var _ storage.Provider = (*Provider)(nil)
