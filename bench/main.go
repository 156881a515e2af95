// Command bench compares shmlock against other mutual exclusion backends
// under contention. It is a thin caller of the core and makes no claims
// about fairness, only throughput and acquire latency.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	uuid "github.com/hashicorp/go-uuid"
	redis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/fwkrumm/shmlock/v1/lock"
	"github.com/fwkrumm/shmlock/v1/shm"
)

var (
	concurrency = flag.Int("c", 8, "Contending handles")
	rounds      = flag.Int("n", 2000, "Total acquire/release cycles")
	target      = flag.String("target", "all", "Target: shm-memory, shm-posix, redis")
	redisAddr   = flag.String("redis-addr", "localhost:6379", "Redis address")
	embedded    = flag.Bool("embedded", false, "Run an embedded Redis instead of connecting")
	poll        = flag.Duration("poll", time.Millisecond, "Poll interval for contended retries")
)

// handle is the minimal surface the harness races: one contender on one
// shared name.
type handle interface {
	acquire(ctx context.Context) error
	release(ctx context.Context) error
}

func main() {
	flag.Parse()

	targets := strings.Split(*target, ",")
	if *target == "all" {
		targets = []string{"shm-memory", "shm-posix", "redis"}
	}

	fmt.Printf("| %-12s | %-10s | %-12s | %-12s |\n", "Backend", "Ops/sec", "Avg Latency", "P99 Latency")
	fmt.Println("|:---|:---|:---|:---|")

	for _, t := range targets {
		runBenchmark(strings.TrimSpace(t))
	}
}

func runBenchmark(name string) {
	suffix, err := uuid.GenerateUUID()
	if err != nil {
		log.Fatal(err)
	}
	key := "bench-" + suffix

	var (
		newHandle func() (handle, error)
		cleanup   func()
	)

	switch name {
	case "shm-memory":
		mem := shm.NewMemory()
		newHandle = func() (handle, error) {
			return newShmHandle(key, mem)
		}
	case "shm-posix":
		p, err := shm.System()
		if err != nil {
			fmt.Fprintf(os.Stderr, "skipping shm-posix: %v\n", err)
			return
		}
		newHandle = func() (handle, error) {
			return newShmHandle(key, p)
		}
		cleanup = func() { _ = p.Unlink(key) }
	case "redis":
		addr := *redisAddr
		if *embedded {
			mr, err := miniredis.Run()
			if err != nil {
				log.Fatal(err)
			}
			addr = mr.Addr()
			cleanup = mr.Close
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			fmt.Fprintf(os.Stderr, "skipping redis: %v\n", err)
			return
		}
		newHandle = func() (handle, error) {
			return newRedisHandle(key, client, *poll), nil
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown target %q\n", name)
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	ctx := context.Background()
	perWorker := *rounds / *concurrency

	var mu sync.Mutex
	latencies := make([]time.Duration, 0, perWorker*(*concurrency))

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < *concurrency; i++ {
		h, err := newHandle()
		if err != nil {
			log.Fatal(err)
		}
		g.Go(func() error {
			local := make([]time.Duration, 0, perWorker)
			for r := 0; r < perWorker; r++ {
				t0 := time.Now()
				if err := h.acquire(ctx); err != nil {
					return err
				}
				local = append(local, time.Since(t0))
				if err := h.release(ctx); err != nil {
					return err
				}
			}
			mu.Lock()
			latencies = append(latencies, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	elapsed := time.Since(start)

	ops := float64(len(latencies)) / elapsed.Seconds()
	fmt.Printf("| %-12s | %-10.0f | %-12v | %-12v |\n", name, ops, avg(latencies), p99(latencies))
}

func newShmHandle(key string, p shm.Provider) (handle, error) {
	l, err := lock.New(key, lock.WithProvider(p), lock.WithPollInterval(*poll))
	if err != nil {
		return nil, err
	}
	return &shmHandle{l: l}, nil
}

type shmHandle struct {
	l *lock.Lock
}

func (h *shmHandle) acquire(ctx context.Context) error {
	ok, err := h.l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("acquire aborted")
	}
	return nil
}

func (h *shmHandle) release(ctx context.Context) error {
	_, err := h.l.Release()
	return err
}

// redisHandle is a SetNX lease lock with a per-handle token, deleted only
// when the stored token still matches.
type redisHandle struct {
	client *redis.Client
	key    string
	token  string
	poll   time.Duration
}

var delScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

func newRedisHandle(key string, client *redis.Client, poll time.Duration) *redisHandle {
	return &redisHandle{client: client, key: key, poll: poll}
}

func (h *redisHandle) acquire(ctx context.Context) error {
	token, err := uuid.GenerateUUID()
	if err != nil {
		return err
	}
	for {
		ok, err := h.client.SetNX(ctx, h.key, token, time.Minute).Result()
		if err != nil {
			return err
		}
		if ok {
			h.token = token
			return nil
		}
		select {
		case <-time.After(h.poll):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *redisHandle) release(ctx context.Context) error {
	_, err := delScript.Run(ctx, h.client, []string{h.key}, h.token).Result()
	if err == redis.Nil {
		err = nil
	}
	return err
}

func avg(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return (sum / time.Duration(len(ds))).Round(time.Microsecond)
}

func p99(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), ds...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)*99/100].Round(time.Microsecond)
}
