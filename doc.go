/*
 *
 * Copyright 2026 RangeKV authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# RangeKV: a range-partitioned, raft-replicated key-value store

## Architecture

A RangeKV cluster has two server roles:

* Node - hosts one or more stores; every store owns one storage engine
  and replicates its regions with raft

* Master - the cluster authority; allocates identifiers, tracks
  node/store membership and records the one-time cluster bootstrap

A node recovers its durable identity from its engines at startup,
bootstraps fresh stores against the master and races sibling nodes for
the creation of the cluster's first region. After startup each store
runs as an independent worker loop fed through the raft transport.

## Data Model

* Region, the smallest unit of replicated data; a contiguous key range
  with one raft group

* Store, one engine plus one worker loop, identified durably by its
  store ident

* Node, the process hosting stores, registered at the master with its
  raft address

### Replication

multi-raft (etcd raft)

### Storage

a store has a single rocksdb instance with meta, raft and data column
families

## Building Blocks

* gRPC
* Rocksdb
* etcd raft
* Prometheus

*/

package rangekv
