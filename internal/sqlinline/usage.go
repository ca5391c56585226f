package sqlinline

const QSelectUsageDaily = `--sql e27731e1-f2ed-40ee-84ab-11809b3ef4dc
select coalesce(downloads, 0)
from usage_daily
where user_id = $1::text and day = current_date;
`

const QIncrementUsageDaily = `--sql 472bea1d-7cf0-4c1b-8f68-ffdf161c7fc6
insert into usage_daily(user_id, day, downloads, updated_at)
values ($1::text, current_date, $2::int, now())
on conflict (user_id, day) do update
set downloads = usage_daily.downloads + excluded.downloads,
    updated_at = now()
returning downloads;
`

const QSelectUsageHistory = `--sql 7f4e0377-fb0f-4910-99f7-66b2e372e845
select day, downloads
from usage_daily
where user_id = $1::text
order by day desc
limit $2::int;
`
