// Wrapper to build the K8s client.

package util

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// BuildRestConfig builds a Kubernetes rest config.
//
// Priority:
// 1. explicit kubeconfig flag
// 2. $KUBECONFIG
// 3. in-cluster config
func BuildRestConfig(kubeconfig string) (*rest.Config, error) {
	var (
		cfg *rest.Config
		err error
	)

	if kubeconfig != "" {
		path := expandTilde(kubeconfig)
		cfg, err = clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, fmt.Errorf("build config from kubeconfig=%s: %w", path, err)
		}
	} else if env := os.Getenv("KUBECONFIG"); env != "" {
		cfg, err = clientcmd.BuildConfigFromFlags("", expandTilde(env))
		if err != nil {
			return nil, fmt.Errorf("build config from $KUBECONFIG=%s: %w", env, err)
		}
	} else {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("in-cluster config: %w", err)
		}
	}

	cfg.UserAgent = "kubeprobe"
	return cfg, nil
}

// BuildKubeClient builds a Kubernetes clientset.
//
// Priority:
// 1. explicit kubeconfig flag
// 2. $KUBECONFIG
// 3. in-cluster config
func BuildKubeClient(kubeconfig string) (*kubernetes.Clientset, error) {
	cfg, err := BuildRestConfig(kubeconfig)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("new clientset: %w", err)
	}
	return clientset, nil
}

// VerifyAPI performs a lightweight server version call and returns the
// server's git version.
func VerifyAPI(ctx context.Context, client kubernetes.Interface) (string, error) {
	type result struct {
		version string
		err     error
	}

	done := make(chan result, 1)
	go func() {
		info, err := client.Discovery().ServerVersion()
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{version: info.GitVersion}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("kubernetes API unreachable: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", fmt.Errorf("kubernetes API unreachable: %w", r.err)
		}
		return r.version, nil
	}
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
