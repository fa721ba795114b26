package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nairobikonnect/konnect/internal/adapter/storage"
	"github.com/nairobikonnect/konnect/internal/core/domain"
	"github.com/nairobikonnect/konnect/internal/core/service"
)

const (
	mysqlDSN      = "root:root@tcp(localhost:3306)/konnect?parseTime=true"
	redisAddr     = "localhost:6379"
	capacity      = 20
	totalRequests = 50
	queueSize     = 100
)

// Fires concurrent reservations against a fresh unit and checks that exactly
// capacity of them succeed with no over-commit.
func main() {
	ctx := context.Background()

	db, err := sql.Open("mysql", mysqlDSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(ctx, db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	zl := zap.NewNop()
	queue := service.NewEventQueue(queueSize)
	defer queue.Close()
	go func() {
		for range queue.C() {
		}
	}()

	svc := service.NewReservationService(storage.NewMySQLAdapter(db), storage.NewRedisAdapter(rdb), queue, zl)

	unit, err := svc.CreateUnit(ctx, "loadgen-seats", domain.UnitKindSeats, capacity)
	if err != nil {
		log.Fatalf("failed to create unit: %v", err)
	}

	var successCount atomic.Int32
	var soldOutCount atomic.Int32
	var errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(userID int) {
			defer wg.Done()

			_, err := svc.Reserve(ctx, fmt.Sprintf("user-%d", userID), unit.ID, 1, "")
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientCapacity):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	soldOut := soldOutCount.Load()

	fmt.Println("========== LOAD TEST RESULTS ==========")
	fmt.Printf("Capacity:        %d\n", capacity)
	fmt.Printf("Total Requests:  %d\n", totalRequests)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Sold Out:        %d\n", soldOut)
	fmt.Printf("Errors:          %d\n", errorCount.Load())
	fmt.Printf("Duration:        %v\n", elapsed)
	fmt.Println("=======================================")

	if success == capacity && soldOut == totalRequests-capacity {
		fmt.Println("PASS: exactly capacity reservations succeeded")
	} else {
		fmt.Printf("FAIL: expected %d success/%d sold out, got %d/%d\n",
			capacity, totalRequests-capacity, success, soldOut)
	}

	final, err := svc.GetUnit(ctx, unit.ID)
	if err != nil {
		log.Fatalf("failed to read unit: %v", err)
	}
	fmt.Printf("Final remaining capacity: %d\n", final.CapacityRemaining)
	if final.CapacityRemaining == 0 {
		fmt.Println("PASS: capacity depleted to 0")
	} else {
		fmt.Printf("FAIL: expected remaining 0, got %d\n", final.CapacityRemaining)
	}
}
