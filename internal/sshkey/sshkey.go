// Copyright (c) 2026 Steve Taranto <staranto@gmail.com>.
// SPDX-License-Identifier: Apache-2.0

package sshkey

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	awsv2 "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/aegea/aegea/internal/aws"
	"github.com/aegea/aegea/internal/log"
	"github.com/aegea/aegea/internal/util"
)

// DefaultBits is the RSA modulus size of generated keys.
const DefaultBits = 2048

// API is the subset of the EC2 client used by Manager.
type API interface {
	DescribeKeyPairs(ctx context.Context, params *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error)
	ImportKeyPair(ctx context.Context, params *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error)
}

// ConflictError means EC2 has the key pair but the private half is missing
// locally, so instances launched with it would be unreachable.
type ConflictError struct {
	Name string
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("key %s found in EC2 but not at %s; delete the EC2 key, copy the private key to %s, or choose another key name",
		e.Name, e.Path, e.Path)
}

// State records where a key pair currently exists.
type State struct {
	Local  bool
	Remote bool
}

// Manager reconciles a named key pair between ~/.ssh and EC2.
type Manager struct {
	Client API
	// Dir holds <name>.pem private keys.
	Dir string
	// AgentSocket is the ssh-agent socket. Empty skips the agent step.
	AgentSocket string
	// Bits overrides DefaultBits for generated keys.
	Bits int
}

// NewManager returns a Manager rooted at ~/.ssh using SSH_AUTH_SOCK.
func NewManager(client API) (*Manager, error) {
	dir, err := util.ExpandHome("~/.ssh")
	if err != nil {
		return nil, err
	}
	return &Manager{
		Client:      client,
		Dir:         dir,
		AgentSocket: os.Getenv("SSH_AUTH_SOCK"),
	}, nil
}

// DefaultKeyName returns aegea.<user>.<short hostname>.
func DefaultKeyName() string {
	username := os.Getenv("USER")
	if u, err := user.Current(); err == nil && u.Username != "" {
		username = u.Username
	}
	// Windows usernames carry a DOMAIN\ prefix.
	if i := strings.LastIndex(username, `\`); i >= 0 {
		username = username[i+1:]
	}

	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	host, _, _ = strings.Cut(host, ".")

	return "aegea." + username + "." + host
}

// KeyPath returns the private key location for name.
func (m *Manager) KeyPath(name string) string {
	return filepath.Join(m.Dir, name+".pem")
}

// Inspect reports whether name exists locally and in EC2.
// InvalidKeyPair.NotFound is the only EC2 error treated as absence.
func (m *Manager) Inspect(ctx context.Context, name string) (State, error) {
	var st State

	if _, err := os.Stat(m.KeyPath(name)); err == nil {
		st.Local = true
	} else if !errors.Is(err, os.ErrNotExist) {
		return st, fmt.Errorf("failed to stat %s: %w", m.KeyPath(name), err)
	}

	out, err := m.Client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{KeyNames: []string{name}})
	switch {
	case err == nil:
		st.Remote = len(out.KeyPairs) > 0
	case aws.HasErrorCode(err, "InvalidKeyPair.NotFound"):
		st.Remote = false
	default:
		return st, fmt.Errorf("failed to describe key pair %s: %w", name, err)
	}

	log.Debugf("key pair state: name=%s local=%t remote=%t", name, st.Local, st.Remote)
	return st, nil
}

// Ensure guarantees name exists both in ~/.ssh and in EC2 and then tries to
// load it into ssh-agent. When verifyPEM is set, a key present in EC2 but
// missing locally is a *ConflictError. A key present in both places is left
// alone without comparing the halves.
func (m *Manager) Ensure(ctx context.Context, name string, verifyPEM bool) (string, error) {
	if name == "" {
		name = DefaultKeyName()
	}

	st, err := m.Inspect(ctx, name)
	if err != nil {
		return "", err
	}

	if st.Remote && !st.Local && verifyPEM {
		return "", &ConflictError{Name: name, Path: m.KeyPath(name)}
	}

	if !st.Remote {
		signer, err := m.localKey(name)
		if err != nil {
			return "", err
		}
		material := ssh.MarshalAuthorizedKey(signer.PublicKey())
		if _, err := m.Client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
			KeyName:           awsv2.String(name),
			PublicKeyMaterial: material,
		}); err != nil {
			return "", fmt.Errorf("failed to import key pair %s: %w", name, err)
		}
		log.Infof("imported SSH key %s (%s)", m.KeyPath(name), ssh.FingerprintSHA256(signer.PublicKey()))
	}

	m.addToAgent(name)
	return name, nil
}

// localKey loads the private key for name, generating and saving one first
// if it does not exist.
func (m *Manager) localKey(name string) (ssh.Signer, error) {
	path := m.KeyPath(name)

	if b, err := os.ReadFile(path); err == nil {
		signer, err := ssh.ParsePrivateKey(b)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return signer, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	bits := m.Bits
	if bits <= 0 {
		bits = DefaultBits
	}
	log.Infof("creating key pair %s", name)
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	if err := os.MkdirAll(m.Dir, 0o700); err != nil { //nolint:mnd
		return nil, fmt.Errorf("failed to create %s: %w", m.Dir, err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil { //nolint:mnd
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return ssh.NewSignerFromKey(key)
}

// addToAgent loads the private key into ssh-agent. Failures only warn.
func (m *Manager) addToAgent(name string) {
	path := m.KeyPath(name)
	if err := m.loadAgent(path); err != nil {
		log.Warnf("failed to add %s to ssh-agent: %v. Connections may fail", path, err)
	}
}

func (m *Manager) loadAgent(path string) error {
	if m.AgentSocket == "" {
		return errors.New("SSH_AUTH_SOCK is not set")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	raw, err := ssh.ParseRawPrivateKey(b)
	if err != nil {
		return err
	}

	conn, err := net.Dial("unix", m.AgentSocket)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	return agent.NewClient(conn).Add(agent.AddedKey{PrivateKey: raw, Comment: path})
}
