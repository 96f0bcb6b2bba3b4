package sqlinline

const QEnsureGenerationsTable = `--sql 50fbb6ba-451c-47de-877b-c606d3f91584
create table if not exists generations (
  id uuid primary key default gen_random_uuid(),
  client_id text not null,
  prompt text not null,
  tags text not null,
  status text not null,
  audio_url text,
  error_message text,
  duration_ms bigint not null default 0,
  created_at timestamptz not null default now()
);
`

const QEnsureGenerationsIndex = `--sql 9db65365-fd63-44fa-b3ae-7ef1493a606a
create index if not exists generations_created_at_idx on generations (created_at desc);
`

const QInsertGeneration = `--sql a721cf13-3744-4722-b981-a73d71121526
insert into generations(
  client_id,
  prompt,
  tags,
  status,
  audio_url,
  error_message,
  duration_ms,
  created_at
) values (
  $1::text,
  $2::text,
  $3::text,
  $4::text,
  nullif($5::text, ''),
  nullif($6::text, ''),
  $7::bigint,
  $8::timestamptz
) returning id::text;
`

const QListRecentGenerations = `--sql cb9cd948-e635-4747-9af9-4c83a2849f01
select
  id::text,
  client_id,
  prompt,
  tags,
  status,
  coalesce(audio_url, ''),
  coalesce(error_message, ''),
  duration_ms,
  created_at
from generations
order by created_at desc
limit $1::int;
`
