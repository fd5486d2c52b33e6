/*
Package ports defines the driven ports (interfaces) of the conductor.

These interfaces decouple the compiler and executor from the outside world:
the LLM backend, side-effecting node implementations, persistence and
cross-replica locking.

# Key Interfaces

  - AgentStepper: runs one LLM step for an agent node (or a collapsed chain).
  - NodeExecutor: runs every non-agent node (tools, http, code, conditions...).
  - FlowStore: saves, loads, lists and deletes flow graphs.
  - RunStore: persists FlowRunState snapshots.
  - DistributedLocker: serializes access to a flow across replicas.

Store implementations are checked with RunFlowStoreContract and RunRunStoreContract.
*/
package ports
