package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the application is running inside a Docker container.
// Detection is based on the presence of /.dockerenv file which exists in all Docker containers.
// The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker returns host.docker.internal for loopback hosts when
// running in Docker, and the host unchanged otherwise.
func ResolveHostForDocker(host string) string {
	if !IsRunningInDocker() {
		return host
	}
	return resolveLoopback(host)
}

// ResolveDSNForDocker rewrites the host of a URL-form DSN
// (postgres://, sqlserver://) with ResolveHostForDocker.
// DSNs that are not URLs are returned unchanged.
func ResolveDSNForDocker(dsn string) string {
	if !IsRunningInDocker() {
		return dsn
	}
	return rewriteDSNHost(dsn)
}

func rewriteDSNHost(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return dsn
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil {
		u.Host = resolveLoopback(u.Host)
		return u.String()
	}
	u.Host = net.JoinHostPort(resolveLoopback(host), port)
	return u.String()
}

func resolveLoopback(host string) string {
	if host == "localhost" || host == "127.0.0.1" {
		return "host.docker.internal"
	}
	return host
}
