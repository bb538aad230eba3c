package httpapi

import (
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/elid/devicesim/internal/devicesim/types"
)

func deviceToStruct(d types.Device) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":          d.ID,
		"name":        d.Name,
		"device_type": string(d.Type),
		"ip_address":  d.IPAddress,
		"status":      string(d.Status),
		"created_at":  d.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at":  d.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
}

func workerStateToStruct(s types.WorkerState) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"device_id": s.DeviceID,
		"running":   s.Running,
	})
}

func workersStatusToStruct(s types.WorkersStatus) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"active_worker_count": s.ActiveWorkerCount,
		"message":             s.Message,
	})
}

func transactionToMap(tx types.Transaction) map[string]any {
	m := map[string]any{
		"transaction_id": tx.TransactionID,
		"device_id":      tx.DeviceID,
		"username":       tx.Username,
		"event_type":     tx.EventType,
		"timestamp":      tx.Timestamp.UTC().Format(time.RFC3339Nano),
		"created_at":     tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if tx.Payload != nil {
		m["payload"] = tx.Payload
	}
	return m
}

func recentTransactionsToStruct(r recentTransactions) (*structpb.Struct, error) {
	list := make([]any, 0, len(r.Transactions))
	for _, tx := range r.Transactions {
		list = append(list, transactionToMap(tx))
	}
	return structpb.NewStruct(map[string]any{"transactions": list})
}
