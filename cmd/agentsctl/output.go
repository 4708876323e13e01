package main

import (
	"encoding/json"
	"fmt"

	"github.com/Inventiv-IT-for-AI/inventiv-agents-sub001/internal/domain"
)

func writeJSON(value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func instanceFields(inst *domain.Instance) map[string]any {
	fields := map[string]any{
		"id":            inst.ID,
		"status":        inst.Status,
		"provider":      inst.ProviderID,
		"zone":          inst.ZoneID,
		"instance_type": inst.InstanceTypeID,
		"created_at":    inst.CreatedAt,
	}
	if inst.ModelID != "" {
		fields["model"] = inst.ModelID
	}
	if inst.ProviderInstanceID != "" {
		fields["provider_instance_id"] = inst.ProviderInstanceID
	}
	if inst.IPAddress != "" {
		fields["ip"] = inst.IPAddress
	}
	if inst.WorkerStatus != "" {
		fields["worker_status"] = inst.WorkerStatus
	}
	if inst.WorkerQueueDepth != nil {
		fields["queue_depth"] = *inst.WorkerQueueDepth
	}
	if inst.ErrorCode != "" {
		fields["error_code"] = inst.ErrorCode
		fields["error_message"] = inst.ErrorMessage
	}
	if inst.DeletionReason != "" {
		fields["deletion_reason"] = inst.DeletionReason
	}
	if inst.RetryCount > 0 {
		fields["retry_count"] = inst.RetryCount
	}
	return fields
}

func printInstanceLine(inst *domain.Instance) {
	ip := inst.IPAddress
	if ip == "" {
		ip = "-"
	}
	model := inst.ModelID
	if model == "" {
		model = "-"
	}
	fmt.Printf("%s\t%s\t%s/%s\t%s\t%s\n",
		inst.ID, inst.Status, inst.ProviderID, inst.ZoneID, ip, model)
}
