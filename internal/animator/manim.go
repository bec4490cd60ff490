package animator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrRenderTimeout = errors.New("animation generation timed out")
	ErrNoVideo       = errors.New("no video files were generated")
)

// FindManim returns the command used to invoke manim: bin when it is on the
// PATH, otherwise `python3 -m manim`.
func FindManim(bin string) []string {
	if bin == "" {
		bin = "manim"
	}
	if path, err := exec.LookPath(bin); err == nil {
		return []string{path}
	}
	log.Printf("manim executable %q not found, using python3 -m manim", bin)
	return []string{"python3", "-m", "manim"}
}

// ManimRenderer renders scene code into an mp4 under MediaDir/videos.
type ManimRenderer struct {
	Command  []string
	MediaDir string
	Quality  string // l, m, h, p or k
	Timeout  time.Duration
	Now      func() time.Time
}

// NewManimRenderer resolves mediaDir to an absolute path. manim runs inside
// MediaDir and also receives it as --media_dir, so a relative path would be
// resolved twice.
func NewManimRenderer(command []string, mediaDir, quality string, timeout time.Duration) (*ManimRenderer, error) {
	mediaDir, err := filepath.Abs(mediaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(mediaDir, "videos"), 0755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}
	if quality == "" {
		quality = "h"
	}
	return &ManimRenderer{
		Command:  command,
		MediaDir: mediaDir,
		Quality:  quality,
		Timeout:  timeout,
		Now:      time.Now,
	}, nil
}

// Render writes code to a temporary scene file, runs manim on its Scene
// class and returns the path of the copied output video.
func (r *ManimRenderer) Render(ctx context.Context, code string) (string, error) {
	class, err := SceneClass(code)
	if err != nil {
		return "", err
	}

	src, err := os.CreateTemp("", "scene_*.py")
	if err != nil {
		return "", fmt.Errorf("failed to create scene file: %w", err)
	}
	defer os.Remove(src.Name())

	if _, err := src.WriteString(code); err != nil {
		src.Close()
		return "", fmt.Errorf("failed to write scene file: %w", err)
	}
	src.Close()

	outName := fmt.Sprintf("animation_%s.mp4", r.Now().Format("20060102_150405"))

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, r.Command[1:]...),
		"-q"+r.Quality,
		"--media_dir", r.MediaDir,
		"-o", outName,
		src.Name(),
		class,
	)
	cmd := exec.CommandContext(ctx, r.Command[0], args...)
	cmd.Dir = r.MediaDir
	cmd.WaitDelay = 5 * time.Second

	log.Printf("running manim: %s %s", r.Command[0], strings.Join(args, " "))
	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", ErrRenderTimeout
	}
	if err != nil {
		return "", fmt.Errorf("manim failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	stem := strings.TrimSuffix(filepath.Base(src.Name()), ".py")
	video, err := newestVideo(filepath.Join(r.MediaDir, "videos", stem))
	if err != nil {
		return "", err
	}

	final := filepath.Join(r.MediaDir, "videos", outName)
	if err := copyFile(video, final); err != nil {
		return "", fmt.Errorf("failed to copy video: %w", err)
	}
	return final, nil
}

func newestVideo(dir string) (string, error) {
	var newest string
	var newestMod time.Time

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".mp4") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest, newestMod = path, info.ModTime()
		}
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("video directory was not created: %s", dir)
	}
	if err != nil {
		return "", err
	}
	if newest == "" {
		return "", ErrNoVideo
	}
	return newest, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
