package export

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/copyleftdev/replaykit/internal/recorder"
)

const (
	// DefaultDir is where generated tests are written, relative to cwd.
	DefaultDir = "tests/replaykit"
	// DefaultEnvPrefix prefixes every environment variable generated tests read.
	DefaultEnvPrefix = "REPLAYKIT_"
	// EnvHelperFile is the helper module generated tests import.
	EnvHelperFile = "replaykit-env.ts"
)

// FileName derives the generated test's file name from the spec path:
// "specs/login.md" becomes "specs-login.spec.ts".
func FileName(cwd, specPath string) string {
	p := normalizeSpecPath(cwd, specPath)
	if ext := filepath.Ext(p); strings.EqualFold(ext, ".md") {
		p = strings.TrimSuffix(p, ext)
	}
	var segs []string
	for _, s := range strings.Split(p, "/") {
		if s == "" || s == "." || s == ".." {
			continue
		}
		segs = append(segs, recorder.SanitizePathSegment(s))
	}
	if len(segs) == 0 {
		segs = []string{"spec"}
	}
	return strings.Join(segs, "-") + ".spec.ts"
}

// Path returns the absolute path of the generated test for specPath.
func Path(cwd, dir, specPath string) string {
	return filepath.Join(exportDir(cwd, dir), FileName(cwd, specPath))
}

// RelativePath returns Path relative to cwd, with forward slashes.
func RelativePath(cwd, dir, specPath string) string {
	return recorder.ToSafeRelativePath(cwd, Path(cwd, dir, specPath))
}

// EnsureDir creates the export directory and writes the env helper module
// into it unless one already exists.
func EnsureDir(cwd, dir, envPrefix string) error {
	d := exportDir(cwd, dir)
	if err := os.MkdirAll(d, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	helper := filepath.Join(d, EnvHelperFile)
	if _, err := os.Stat(helper); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat env helper: %w", err)
	}
	if err := writeFileAtomic(helper, []byte(envHelperSource(envPrefix))); err != nil {
		return fmt.Errorf("write env helper: %w", err)
	}
	return nil
}

func exportDir(cwd, dir string) string {
	if dir == "" {
		dir = DefaultDir
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(cwd, filepath.FromSlash(dir))
}

// writeFileAtomic writes data next to path and renames it into place, so a
// failed write never leaves a partial file behind.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}

const envHelperTemplate = `import { createHmac } from 'node:crypto'
import { existsSync, readFileSync } from 'node:fs'
import { join } from 'node:path'

function parseDotEnv(content: string): Record<string, string> {
  const out: Record<string, string> = {}
  for (const rawLine of content.split(/\r?\n/g)) {
    const line = rawLine.trim()
    if (!line || line.startsWith('#')) continue
    const body = line.startsWith('export ') ? line.slice('export '.length).trim() : line
    const eq = body.indexOf('=')
    if (eq <= 0) continue
    let value = body.slice(eq + 1).trim()
    if (value.length >= 2 && (value[0] === '"' || value[0] === "'") && value[value.length - 1] === value[0]) {
      value = value.slice(1, -1)
    }
    out[body.slice(0, eq).trim()] = value
  }
  return out
}

export function loadEnvFiles(cwd: string = process.cwd()): void {
  const initial = new Set(Object.keys(process.env))
  const envName = (process.env.{{PREFIX}}ENV ?? '').trim()
  const files = envName ? ['.env', '.env.' + envName] : ['.env']
  for (const file of files) {
    const path = join(cwd, file)
    if (!existsSync(path)) continue
    for (const [key, value] of Object.entries(parseDotEnv(readFileSync(path, 'utf8')))) {
      if (!initial.has(key)) process.env[key] = value
    }
  }
}

export function getEnvVar(name: string): string {
  const value = process.env[name]
  if (!value) {
    throw new Error('Missing environment variable: ' + name)
  }
  return value
}

function base32Decode(input: string): Buffer {
  const alphabet = 'ABCDEFGHIJKLMNOPQRSTUVWXYZ234567'
  const clean = input.replace(/[\s=]/g, '').toUpperCase()
  let bits = 0
  let value = 0
  const out: number[] = []
  for (const ch of clean) {
    const idx = alphabet.indexOf(ch)
    if (idx < 0) throw new Error('Invalid base32 character in TOTP secret')
    value = (value << 5) | idx
    bits += 5
    if (bits >= 8) {
      out.push((value >>> (bits - 8)) & 0xff)
      bits -= 8
    }
  }
  return Buffer.from(out)
}

// totp returns the current six-digit code (SHA-1, 30s period) for a base32 secret.
export function totp(secret: string, now: number = Date.now()): string {
  const counter = Buffer.alloc(8)
  counter.writeBigUInt64BE(BigInt(Math.floor(now / 1000 / 30)))
  const mac = createHmac('sha1', base32Decode(secret)).update(counter).digest()
  const offset = mac[mac.length - 1] & 0x0f
  const code = (mac.readUInt32BE(offset) & 0x7fffffff) % 1000000
  return code.toString().padStart(6, '0')
}
`

func envHelperSource(prefix string) string {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return strings.ReplaceAll(envHelperTemplate, "{{PREFIX}}", prefix)
}
